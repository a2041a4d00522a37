// Package eth implements a ledger backed by a post-registry contract on an Ethereum-compatible chain.
//
// The contract must provide createPost(string),
// upvotePost(uint256),
// downvotePost(uint256),
// and getAllPosts() returning (id, creator, ipfsHash, rating, timestamp) tuples.
// A PostCreated event carrying the new post's id is used when present.
package eth

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/ledger"
)

var _ posts.Ledger = &Ledger{}

const (
	methodCreate   = "createPost"
	methodUpvote   = "upvotePost"
	methodDownvote = "downvotePost"
	methodList     = "getAllPosts"
	eventCreated   = "PostCreated"
)

// DefaultPollInterval is how often AwaitFinality checks for a transaction receipt.
const DefaultPollInterval = time.Second

// Backend is the node connection a Ledger needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Ledger is a posts.Ledger talking to a deployed contract.
// Without a signing key it is read-only
// and its submissions fail with ErrLedgerRejected.
type Ledger struct {
	backend  Backend
	abi      abi.ABI
	address  common.Address
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	poll     time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPollInterval sets how often AwaitFinality polls for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *Ledger) { l.poll = d }
}

// postTuple mirrors one element of getAllPosts' result.
// Field names must match the ABI component names after camel-casing.
type postTuple struct {
	Id        *big.Int
	Creator   common.Address
	IpfsHash  string
	Rating    *big.Int
	Timestamp *big.Int
}

// New produces a Ledger for the contract described by info.
// If key is nil the Ledger is read-only.
func New(ctx context.Context, backend Backend, info *ledger.Info, key *ecdsa.PrivateKey, opts ...Option) (*Ledger, error) {
	parsed, err := abi.JSON(bytes.NewReader(info.ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parsing contract abi")
	}
	for _, m := range []string{methodCreate, methodUpvote, methodDownvote, methodList} {
		if _, ok := parsed.Methods[m]; !ok {
			return nil, fmt.Errorf("contract abi lacks method %s", m)
		}
	}
	if !common.IsHexAddress(info.Address) {
		return nil, fmt.Errorf("bad contract address %q", info.Address)
	}
	address := common.HexToAddress(info.Address)

	l := &Ledger{
		backend:  backend,
		abi:      parsed,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}

	if key != nil {
		chainID, err := backend.ChainID(ctx)
		if err != nil {
			return nil, posts.Mark(errors.Wrap(err, "getting chain id"), posts.ErrLedgerUnreachable)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return nil, errors.Wrap(err, "creating transactor")
		}
		l.auth = auth
	}

	return l, nil
}

// Dial connects to the node at url and produces a Ledger.
// KeyHex is a hex-encoded secp256k1 private key, optionally 0x-prefixed;
// if it is empty the Ledger is read-only.
func Dial(ctx context.Context, url string, info *ledger.Info, keyHex string, opts ...Option) (*Ledger, error) {
	var key *ecdsa.PrivateKey
	if keyHex != "" {
		var err error
		key, err = crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "parsing signing key")
		}
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, posts.Mark(errors.Wrapf(err, "dialing %s", url), posts.ErrLedgerUnreachable)
	}
	return New(ctx, client, info, key, opts...)
}

// Address is the contract's address.
func (l *Ledger) Address() common.Address {
	return l.address
}

// From is the account that signs submissions,
// or the zero address for a read-only Ledger.
func (l *Ledger) From() common.Address {
	if l.auth == nil {
		return common.Address{}
	}
	return l.auth.From
}

// ListPosts implements posts.Ledger.
func (l *Ledger) ListPosts(ctx context.Context) ([]posts.LedgerEntry, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodList); err != nil {
		return nil, errors.Wrap(classify(err), "calling getAllPosts")
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getAllPosts returned %d values, want 1", len(out))
	}
	tuples, err := convertPosts(out[0])
	if err != nil {
		return nil, err
	}

	result := make([]posts.LedgerEntry, 0, len(tuples))
	for _, t := range tuples {
		result = append(result, toEntry(t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PostID < result[j].PostID })
	return result, nil
}

func convertPosts(in interface{}) (tuples []postTuple, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoding getAllPosts result: %v", r)
		}
	}()
	tuples = *abi.ConvertType(in, new([]postTuple)).(*[]postTuple)
	return tuples, nil
}

func toEntry(t postTuple) posts.LedgerEntry {
	e := posts.LedgerEntry{
		Creator:    t.Creator.Hex(),
		ContentRef: posts.ContentID(t.IpfsHash),
	}
	if t.Id != nil {
		e.PostID = t.Id.Uint64()
	}
	if t.Rating != nil {
		e.Rating = t.Rating.Int64()
	}
	if t.Timestamp != nil {
		e.CreatedAt = time.Unix(t.Timestamp.Int64(), 0).UTC()
	}
	return e
}

// GetPost implements posts.Ledger.
func (l *Ledger) GetPost(ctx context.Context, postID uint64) (posts.LedgerEntry, error) {
	entries, err := l.ListPosts(ctx)
	if err != nil {
		return posts.LedgerEntry{}, err
	}
	i := sort.Search(len(entries), func(i int) bool { return entries[i].PostID >= postID })
	if i < len(entries) && entries[i].PostID == postID {
		return entries[i], nil
	}
	return posts.LedgerEntry{}, errors.Wrapf(posts.ErrPostNotFound, "post %d", postID)
}

// CreatePost implements posts.Ledger.
func (l *Ledger) CreatePost(ctx context.Context, ref posts.ContentID) (posts.Receipt, error) {
	if _, err := posts.ParseContentID(string(ref)); err != nil {
		return posts.Receipt{}, posts.Mark(errors.Wrap(err, "malformed content reference"), posts.ErrLedgerRejected)
	}
	tx, err := l.transact(ctx, methodCreate, string(ref))
	if err != nil {
		return posts.Receipt{}, err
	}
	return posts.Receipt{
		ID:          tx.Hash().Hex(),
		Intent:      posts.IntentCreate,
		ContentRef:  ref,
		SubmittedAt: time.Now(),
	}, nil
}

// Vote implements posts.Ledger.
// It checks that the post exists before submitting,
// so voting on a missing post costs nothing.
func (l *Ledger) Vote(ctx context.Context, postID uint64, dir posts.Direction) (posts.Receipt, error) {
	if _, err := l.GetPost(ctx, postID); err != nil {
		return posts.Receipt{}, err
	}
	method := methodDownvote
	if dir == posts.Up {
		method = methodUpvote
	}
	tx, err := l.transact(ctx, method, new(big.Int).SetUint64(postID))
	if err != nil {
		return posts.Receipt{}, err
	}
	return posts.Receipt{
		ID:          tx.Hash().Hex(),
		Intent:      posts.IntentVote,
		PostID:      postID,
		SubmittedAt: time.Now(),
	}, nil
}

func (l *Ledger) transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	if l.auth == nil {
		return nil, posts.Mark(fmt.Errorf("no signing key configured for %s", method), posts.ErrLedgerRejected)
	}
	opts := *l.auth
	opts.Context = ctx
	tx, err := l.contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, errors.Wrapf(classify(err), "submitting %s", method)
	}
	return tx, nil
}

// Status implements posts.Ledger.
func (l *Ledger) Status(ctx context.Context, r posts.Receipt) (posts.Status, error) {
	rcpt, err := l.receipt(ctx, r)
	if err != nil {
		return "", err
	}
	switch {
	case rcpt == nil:
		return posts.StatusPending, nil
	case rcpt.Status == types.ReceiptStatusSuccessful:
		return posts.StatusConfirmed, nil
	default:
		return posts.StatusRejected, nil
	}
}

// receipt returns nil, nil if the transaction is not yet mined.
func (l *Ledger) receipt(ctx context.Context, r posts.Receipt) (*types.Receipt, error) {
	if !strings.HasPrefix(r.ID, "0x") || len(r.ID) != 2+2*common.HashLength {
		return nil, posts.Mark(fmt.Errorf("malformed transaction hash %q", r.ID), posts.ErrInvalid)
	}
	rcpt, err := l.backend.TransactionReceipt(ctx, common.HexToHash(r.ID))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(classify(err), "getting receipt for %s", r.ID)
	}
	return rcpt, nil
}

// AwaitFinality implements posts.Ledger.
func (l *Ledger) AwaitFinality(ctx context.Context, r posts.Receipt, timeout time.Duration) (posts.Finality, error) {
	ctx, cancel := posts.FinalityContext(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		rcpt, err := l.receipt(ctx, r)
		if err != nil && ctx.Err() == nil {
			return posts.Finality{}, err
		}
		if rcpt != nil {
			return l.finality(ctx, r, rcpt)
		}

		select {
		case <-ctx.Done():
			return posts.Finality{Status: posts.StatusTimedOut}, posts.Mark(errors.Wrapf(ctx.Err(), "awaiting %s", r.ID), posts.ErrTimeout)
		case <-ticker.C:
		}
	}
}

func (l *Ledger) finality(ctx context.Context, r posts.Receipt, rcpt *types.Receipt) (posts.Finality, error) {
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return posts.Finality{Status: posts.StatusRejected}, posts.Mark(fmt.Errorf("transaction %s reverted", r.ID), posts.ErrLedgerRejected)
	}
	if r.Intent != posts.IntentCreate {
		return posts.Finality{Status: posts.StatusConfirmed, PostID: r.PostID}, nil
	}
	if id, ok := l.createdID(rcpt); ok {
		return posts.Finality{Status: posts.StatusConfirmed, PostID: id}, nil
	}

	// No usable event. Find the newest matching post by this sender.
	entries, err := l.ListPosts(ctx)
	if err != nil {
		return posts.Finality{Status: posts.StatusConfirmed}, errors.Wrap(err, "finding created post")
	}
	from := l.From().Hex()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.ContentRef == r.ContentRef && strings.EqualFold(e.Creator, from) {
			return posts.Finality{Status: posts.StatusConfirmed, PostID: e.PostID}, nil
		}
	}
	return posts.Finality{Status: posts.StatusConfirmed}, fmt.Errorf("confirmed post for %s not found on ledger", r.ContentRef)
}

func (l *Ledger) createdID(rcpt *types.Receipt) (uint64, bool) {
	ev, ok := l.abi.Events[eventCreated]
	if !ok {
		return 0, false
	}
	for _, lg := range rcpt.Logs {
		if lg == nil || lg.Address != l.address || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		fields := make(map[string]interface{})
		if err := l.contract.UnpackLogIntoMap(fields, eventCreated, *lg); err != nil {
			continue
		}
		for _, name := range []string{"id", "postId", "_postId"} {
			if id, ok := fields[name].(*big.Int); ok {
				return id.Uint64(), true
			}
		}
	}
	return 0, false
}

// Ping implements posts.Pinger.
func (l *Ledger) Ping(ctx context.Context) error {
	_, err := l.backend.ChainID(ctx)
	return errors.Wrap(classify(err), "pinging node")
}

var notFoundMarkers = []string{"does not exist", "post not found", "invalid post"}

// classify maps a node error onto the posts sentinels.
// Errors the node returns in a JSON-RPC error object,
// including reverts, mean the intent was refused.
// Anything else means the node could not be reached.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, m := range notFoundMarkers {
		if strings.Contains(msg, m) {
			return posts.Mark(err, posts.ErrPostNotFound)
		}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) || strings.Contains(msg, "revert") {
		return posts.Mark(err, posts.ErrLedgerRejected)
	}
	return posts.Mark(err, posts.ErrLedgerUnreachable)
}

func init() {
	ledger.Register("eth", func(ctx context.Context, conf map[string]interface{}) (posts.Ledger, error) {
		url, ok := conf["url"].(string)
		if !ok || url == "" {
			url = "http://127.0.0.1:8545"
		}
		infoPath, ok := conf["info"].(string)
		if !ok || infoPath == "" {
			infoPath = ledger.DefaultInfoFile
		}
		info, err := ledger.LoadInfo(infoPath)
		if err != nil {
			return nil, err
		}
		key, _ := conf["key"].(string)

		var opts []Option
		if s, ok := conf["poll"].(string); ok {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing poll %q", s)
			}
			opts = append(opts, WithPollInterval(d))
		}
		return Dial(ctx, url, info, key, opts...)
	})
}
