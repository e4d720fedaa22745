package domain

import "time"

// Media is the metadata record owned by media-service. The blob itself lives
// in object storage under ObjectKey.
type Media struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ObjectKey string    `json:"-"`
	MimeType  string    `json:"mimeType"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchDocument is the search-service projection of a post.
type SearchDocument struct {
	PostID    string    `json:"postId" bson:"_id"`
	UserID    string    `json:"userId" bson:"userId"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	IndexedAt time.Time `json:"indexedAt" bson:"indexedAt"`
}
