package mongo

import "time"

type checkpointModel struct {
	ID        string    `bson:"_id"`
	CaseID    string    `bson:"case_id"`
	Seq       int64     `bson:"seq"`
	Stage     string    `bson:"stage"`
	Status    string    `bson:"status"`
	Codec     string    `bson:"codec"`
	State     []byte    `bson:"state"`
	CreatedAt time.Time `bson:"created_at"`
}

type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
