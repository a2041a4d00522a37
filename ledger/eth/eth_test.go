package eth

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/ledger"
)

// fakeBackend answers contract calls and receipt lookups from memory.
// Any other backend method panics through the nil embedded interface,
// so a test that reaches one has submitted a transaction it should not have.
type fakeBackend struct {
	bind.ContractBackend

	outputs  abi.Arguments
	tuples   []postTuple
	receipts map[common.Hash]*types.Receipt
	callErr  error
}

func (f *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.outputs.Pack(f.tuples)
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1337), nil
}

func newTestLedger(t *testing.T, b Backend, key *ecdsa.PrivateKey) *Ledger {
	t.Helper()
	info, err := ledger.LoadInfo("testdata/contract-info.json")
	if err != nil {
		t.Fatal(err)
	}
	l, err := New(context.Background(), b, info, key, WithPollInterval(5*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if f, ok := b.(*fakeBackend); ok {
		f.outputs = l.abi.Methods[methodList].Outputs
	}
	return l
}

func testRef(t *testing.T, s string) posts.ContentID {
	t.Helper()
	id, err := posts.ComputeID([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestListPosts(t *testing.T) {
	var (
		creator = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
		refA    = testRef(t, "a")
		refB    = testRef(t, "b")
		ts      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	)
	b := &fakeBackend{
		tuples: []postTuple{
			{Id: big.NewInt(2), Creator: creator, IpfsHash: string(refB), Rating: big.NewInt(-3), Timestamp: big.NewInt(ts.Unix() + 60)},
			{Id: big.NewInt(1), Creator: creator, IpfsHash: string(refA), Rating: big.NewInt(5), Timestamp: big.NewInt(ts.Unix())},
		},
	}
	l := newTestLedger(t, b, nil)

	got, err := l.ListPosts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []posts.LedgerEntry{
		{PostID: 1, Creator: creator.Hex(), ContentRef: refA, Rating: 5, CreatedAt: ts},
		{PostID: 2, Creator: creator.Hex(), ContentRef: refB, Rating: -3, CreatedAt: ts.Add(time.Minute)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	e, err := l.GetPost(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if e.Rating != -3 {
		t.Errorf("got rating %d, want -3", e.Rating)
	}
	if _, err := l.GetPost(context.Background(), 3); !errors.Is(err, posts.ErrPostNotFound) {
		t.Errorf("got %v, want ErrPostNotFound", err)
	}
}

func TestListPostsUnreachable(t *testing.T) {
	b := &fakeBackend{callErr: errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")}
	l := newTestLedger(t, b, nil)
	_, err := l.ListPosts(context.Background())
	if !errors.Is(err, posts.ErrLedgerUnreachable) {
		t.Errorf("got %v, want ErrLedgerUnreachable", err)
	}
}

func TestVoteMissingPost(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	b := &fakeBackend{}
	l := newTestLedger(t, b, key)

	_, err = l.Vote(context.Background(), 99, posts.Up)
	if !errors.Is(err, posts.ErrPostNotFound) {
		t.Errorf("got %v, want ErrPostNotFound", err)
	}
}

func TestReadOnly(t *testing.T) {
	l := newTestLedger(t, &fakeBackend{}, nil)
	if l.From() != (common.Address{}) {
		t.Errorf("read-only ledger has sender %s", l.From().Hex())
	}
	_, err := l.CreatePost(context.Background(), testRef(t, "a"))
	if !errors.Is(err, posts.ErrLedgerRejected) {
		t.Errorf("got %v, want ErrLedgerRejected", err)
	}
}

func TestMalformedRef(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	l := newTestLedger(t, &fakeBackend{}, key)
	_, err = l.CreatePost(context.Background(), "not-a-ref")
	if !errors.Is(err, posts.ErrLedgerRejected) {
		t.Errorf("got %v, want ErrLedgerRejected", err)
	}
}

func TestStatus(t *testing.T) {
	var (
		ok      = common.HexToHash("0x01")
		failed  = common.HexToHash("0x02")
		pending = common.HexToHash("0x03")
	)
	b := &fakeBackend{
		receipts: map[common.Hash]*types.Receipt{
			ok:     {Status: types.ReceiptStatusSuccessful},
			failed: {Status: types.ReceiptStatusFailed},
		},
	}
	l := newTestLedger(t, b, nil)

	cases := []struct {
		h    common.Hash
		want posts.Status
	}{
		{h: ok, want: posts.StatusConfirmed},
		{h: failed, want: posts.StatusRejected},
		{h: pending, want: posts.StatusPending},
	}
	for _, c := range cases {
		got, err := l.Status(context.Background(), posts.Receipt{ID: c.h.Hex(), Intent: posts.IntentVote})
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("%s: got %s, want %s", c.h.Hex(), got, c.want)
		}
	}

	if _, err := l.Status(context.Background(), posts.Receipt{ID: "mem-1"}); !errors.Is(err, posts.ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}

func TestAwaitFinalityFromEvent(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	b := &fakeBackend{receipts: make(map[common.Hash]*types.Receipt)}
	l := newTestLedger(t, b, key)

	ref := testRef(t, "a")
	ev := l.abi.Events[eventCreated]
	data, err := ev.Inputs.NonIndexed().Pack(string(ref))
	if err != nil {
		t.Fatal(err)
	}
	h := common.HexToHash("0x0a")
	b.receipts[h] = &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{{
			Address: l.Address(),
			Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(7)), common.BytesToHash(l.From().Bytes())},
			Data:    data,
		}},
	}

	fin, err := l.AwaitFinality(context.Background(), posts.Receipt{ID: h.Hex(), Intent: posts.IntentCreate, ContentRef: ref}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if fin.Status != posts.StatusConfirmed || fin.PostID != 7 {
		t.Errorf("got %+v, want confirmed post 7", fin)
	}
}

func TestAwaitFinalityByScan(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	var (
		ref   = testRef(t, "a")
		from  = crypto.PubkeyToAddress(key.PublicKey)
		other = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
		h     = common.HexToHash("0x0b")
	)
	b := &fakeBackend{
		tuples: []postTuple{
			{Id: big.NewInt(3), Creator: from, IpfsHash: string(ref), Rating: big.NewInt(0), Timestamp: big.NewInt(1)},
			{Id: big.NewInt(4), Creator: from, IpfsHash: string(ref), Rating: big.NewInt(0), Timestamp: big.NewInt(2)},
			{Id: big.NewInt(5), Creator: other, IpfsHash: string(ref), Rating: big.NewInt(0), Timestamp: big.NewInt(3)},
		},
		receipts: map[common.Hash]*types.Receipt{h: {Status: types.ReceiptStatusSuccessful}},
	}
	l := newTestLedger(t, b, key)

	fin, err := l.AwaitFinality(context.Background(), posts.Receipt{ID: h.Hex(), Intent: posts.IntentCreate, ContentRef: ref}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if fin.PostID != 4 {
		t.Errorf("got post %d, want 4", fin.PostID)
	}
}

func TestAwaitFinalityVote(t *testing.T) {
	h := common.HexToHash("0x0c")
	b := &fakeBackend{receipts: map[common.Hash]*types.Receipt{h: {Status: types.ReceiptStatusSuccessful}}}
	l := newTestLedger(t, b, nil)

	fin, err := l.AwaitFinality(context.Background(), posts.Receipt{ID: h.Hex(), Intent: posts.IntentVote, PostID: 12}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if fin.Status != posts.StatusConfirmed || fin.PostID != 12 {
		t.Errorf("got %+v", fin)
	}
}

func TestAwaitFinalityReverted(t *testing.T) {
	h := common.HexToHash("0x0d")
	b := &fakeBackend{receipts: map[common.Hash]*types.Receipt{h: {Status: types.ReceiptStatusFailed}}}
	l := newTestLedger(t, b, nil)

	fin, err := l.AwaitFinality(context.Background(), posts.Receipt{ID: h.Hex(), Intent: posts.IntentVote, PostID: 1}, time.Second)
	if !errors.Is(err, posts.ErrLedgerRejected) {
		t.Errorf("got %v, want ErrLedgerRejected", err)
	}
	if fin.Status != posts.StatusRejected {
		t.Errorf("got status %s", fin.Status)
	}
}

func TestAwaitFinalityTimeout(t *testing.T) {
	l := newTestLedger(t, &fakeBackend{}, nil)

	start := time.Now()
	fin, err := l.AwaitFinality(context.Background(), posts.Receipt{ID: common.HexToHash("0x0e").Hex(), Intent: posts.IntentVote}, 30*time.Millisecond)
	if !errors.Is(err, posts.ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
	if fin.Status != posts.StatusTimedOut {
		t.Errorf("got status %s", fin.Status)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("waited %s", elapsed)
	}
}

type jsonRPCError struct {
	code int
	msg  string
}

func (e jsonRPCError) Error() string  { return e.msg }
func (e jsonRPCError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{err: errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), want: posts.ErrLedgerUnreachable},
		{err: jsonRPCError{code: -32000, msg: "insufficient funds for gas * price + value"}, want: posts.ErrLedgerRejected},
		{err: errors.New("execution reverted"), want: posts.ErrLedgerRejected},
		{err: jsonRPCError{code: 3, msg: "execution reverted: Post does not exist"}, want: posts.ErrPostNotFound},
	}
	for i, c := range cases {
		if got := classify(c.err); !errors.Is(got, c.want) {
			t.Errorf("case %d: %v is not %v", i, got, c.want)
		}
	}
	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestNewBadInfo(t *testing.T) {
	cases := []ledger.Info{
		{Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3", ABI: []byte(`[]`)},
		{Address: "nope", ABI: []byte(`[{"type":"function","name":"createPost","inputs":[{"name":"h","type":"string"}],"outputs":[]},{"type":"function","name":"upvotePost","inputs":[{"name":"i","type":"uint256"}],"outputs":[]},{"type":"function","name":"downvotePost","inputs":[{"name":"i","type":"uint256"}],"outputs":[]},{"type":"function","name":"getAllPosts","inputs":[],"outputs":[]}]`)},
		{Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3", ABI: []byte(`not json`)},
	}
	for i, info := range cases {
		info := info
		if _, err := New(context.Background(), &fakeBackend{}, &info, nil); err == nil {
			t.Errorf("case %d: got no error", i)
		}
	}
}
