package posts

import "time"

// Placeholder content for a post whose payload could not be loaded.
const (
	PlaceholderTitle   = "Error loading content"
	PlaceholderContent = "Could not load post content from IPFS"
	PlaceholderAuthor  = "Unknown"
)

// MergedPost is a ledger entry joined with its content.
// When ContentAvailable is false,
// the content fields hold the placeholder values
// and PublishedAt is zero.
type MergedPost struct {
	PostID     uint64    `json:"postId"`
	Creator    string    `json:"creator"`
	ContentRef ContentID `json:"contentRef"`
	Rating     int64     `json:"rating"`
	CreatedAt  time.Time `json:"createdAt"`

	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"publishedAt"`

	ContentAvailable bool `json:"contentAvailable"`
}

// Merge joins a ledger entry with its content.
func Merge(e LedgerEntry, r ContentRecord) MergedPost {
	m := fromEntry(e)
	m.Title = r.Title
	m.Content = r.Content
	m.Author = r.Author
	m.PublishedAt = r.CreatedAt
	m.ContentAvailable = true
	return m
}

// Placeholder is the MergedPost for a ledger entry whose content is unavailable.
func Placeholder(e LedgerEntry) MergedPost {
	m := fromEntry(e)
	m.Title = PlaceholderTitle
	m.Content = PlaceholderContent
	m.Author = PlaceholderAuthor
	return m
}

func fromEntry(e LedgerEntry) MergedPost {
	return MergedPost{
		PostID:     e.PostID,
		Creator:    e.Creator,
		ContentRef: e.ContentRef,
		Rating:     e.Rating,
		CreatedAt:  e.CreatedAt,
	}
}

// Entry recovers the ledger half of m.
func (m MergedPost) Entry() LedgerEntry {
	return LedgerEntry{
		PostID:     m.PostID,
		Creator:    m.Creator,
		ContentRef: m.ContentRef,
		Rating:     m.Rating,
		CreatedAt:  m.CreatedAt,
	}
}
