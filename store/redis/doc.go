// Package redis implements store.Store on go-redis/v9. Each snapshot is a
// Hash, a per-case Sorted Set scored by sequence number indexes them, and
// INCR on a per-case counter assigns the numbers.
//
// The caller owns the client lifecycle; Close never closes it.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
