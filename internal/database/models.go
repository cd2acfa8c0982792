package database

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/util"
)

// Clip kinds.
const (
	KindText  = "text"
	KindImage = "image"
)

// Clip is one history entry. Text payloads live in Content; image payloads
// live in the content store keyed by Hash, so the row only carries dimensions
// and the byte count.
type Clip struct {
	bun.BaseModel `bun:"table:clips"`

	ID      int64  `bun:"id,pk,autoincrement" json:"id"`
	Kind    string `bun:"kind,notnull" json:"kind"`
	Content string `bun:"content" json:"content,omitempty"`
	Hash    string `bun:"hash,unique,notnull" json:"hash"`
	Preview string `bun:"preview" json:"preview"`

	Category string            `bun:"category,notnull,default:'text'" json:"category"`
	Subtype  string            `bun:"subtype" json:"subtype,omitempty"`
	Tags     []string          `bun:"tags,type:text,nullzero" json:"tags,omitempty"`
	Metadata map[string]string `bun:"metadata,type:text,nullzero" json:"metadata,omitempty"`

	Masked   bool `bun:"masked,notnull,default:false" json:"masked"`
	Pinned   bool `bun:"pinned,notnull,default:false" json:"pinned"`
	Favorite bool `bun:"favorite,notnull,default:false" json:"favorite"`

	SizeBytes int64 `bun:"size_bytes,notnull,default:0" json:"size_bytes"`
	Width     int   `bun:"width,nullzero" json:"width,omitempty"`
	Height    int   `bun:"height,nullzero" json:"height,omitempty"`

	UseCount int `bun:"use_count,notnull,default:1" json:"use_count"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UsedAt    time.Time `bun:"used_at,nullzero,notnull,default:current_timestamp" json:"used_at"`
}

// DisplayPreview is what list views should render. Masked clips never leak
// their preview text.
func (c *Clip) DisplayPreview() string {
	if c.Masked {
		return util.MaskedPreview
	}
	return c.Preview
}

// Stats is an aggregate snapshot of the history.
type Stats struct {
	Total      int            `json:"total"`
	Pinned     int            `json:"pinned"`
	Favorites  int            `json:"favorites"`
	Images     int            `json:"images"`
	TotalBytes int64          `json:"total_bytes"`
	Categories map[string]int `json:"categories"`
}
