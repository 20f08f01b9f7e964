// Package mongo implements store.Store on the official MongoDB driver
// (mongo-driver/v2). Each snapshot is one document; a counters collection
// hands out per-case sequence numbers with an atomic $inc upsert.
//
// The caller owns the *mongo.Database lifecycle; Close never disconnects.
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	s := mongostore.New(client.Database("caseflow"))
//	if err := s.Migrate(ctx); err != nil { ... }
package mongo
