// Package redis connects to Redis for the Redis-backed job queue.
//
// Connect retries the initial ping according to Config, and Healthcheck
// returns a probe suitable for dispatcher and service health reporting.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	storage, err := queue.NewRedisStorage(client, queue.WithRedisPrefix(cfg.KeyPrefix))
package redis
