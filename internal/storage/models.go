package storage

import "time"

// ArtifactRef points at a media message already stored in a channel.
// Delivery re-sends it by reference, the bytes are never re-uploaded.
type ArtifactRef struct {
	ChatID    int64 `bson:"chat_id"`
	MessageID int   `bson:"message_id"`
}

type Movie struct {
	ID          string      `bson:"_id"`
	Title       string      `bson:"title"`
	Year        int         `bson:"year"`
	Genres      []string    `bson:"genres,omitempty"`
	Description string      `bson:"description,omitempty"`
	Category    string      `bson:"category"`
	Artifact    ArtifactRef `bson:"artifact"`
	OwnerID     int64       `bson:"owner_id"`
	Status      string      `bson:"status"`
	UpdatedAt   time.Time   `bson:"updated_at"`
}

type Series struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Category    string    `bson:"category"`
	Year        int       `bson:"year"`
	Genres      []string  `bson:"genres,omitempty"`
	Description string    `bson:"description,omitempty"`
	ChannelID   int64     `bson:"channel_id"`
	OwnerID     int64     `bson:"owner_id"`
	Seasons     []Season  `bson:"seasons,omitempty"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type Season struct {
	Number int    `bson:"number"`
	Title  string `bson:"title,omitempty"`
}

// Episode lives in its own collection so its id can carry a global unique
// index and (series, season, number) a compound one.
type Episode struct {
	ID       string      `bson:"_id"`
	SeriesID string      `bson:"series_id"`
	Season   int         `bson:"season"`
	Number   int         `bson:"number"`
	Title    string      `bson:"title,omitempty"`
	Artifact ArtifactRef `bson:"artifact"`
}

type Operator struct {
	UserID    int64     `bson:"_id"`
	CanUpload bool      `bson:"can_upload"`
	IsAdmin   bool      `bson:"is_admin"`
	Uploads   int64     `bson:"uploads"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ListItem is a catalog summary row for the /list command.
type ListItem struct {
	ID    string
	Kind  string // "movie", "webseries" or "anime"
	Title string
	Year  int
}

func (s *Series) Season(number int) *Season {
	for i := range s.Seasons {
		if s.Seasons[i].Number == number {
			return &s.Seasons[i]
		}
	}
	return nil
}
