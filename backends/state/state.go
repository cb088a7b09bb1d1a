// Package state stores cross-instance service state in a global redis store
// and hands out distributed locks. The import service uses it to serialize
// imports per code system URL when the deployment opts in, and to record the
// time of the last successful import per system.
//
// This package will automatically set a prefix.
package state

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrDoesNotExist  = errors.New("key does not exist")
	ValidPrefixRegex = regexp.MustCompile("^[a-z0-9_:-]+$")
)

const (
	ImportLockPrefix     = "import-lock"
	LastImportPrefix     = "last-import"
	DefaultImportLockTTL = 30 * time.Second
)

type IState interface {
	// Get will return the value of the key if it exists; takes optional,
	// additional prefixes that will be appended to the pre-configured prefix.
	Get(ctx context.Context, key string, prefix ...string) (string, error)

	// Set will overwrite the value if it already exists; takes optional,
	// additional prefixes that will be appended to the pre-configured prefix.
	Set(ctx context.Context, key, value string, prefix ...string) error

	// Delete will remove the key from the store; takes optional, additional
	// prefixes that will be appended to the pre-configured prefix.
	Delete(ctx context.Context, key string, prefix ...string) error

	// Exists returns true/false if the key exists in the store; takes optional,
	// additional prefixes that will be appended to the pre-configured prefix.
	Exists(ctx context.Context, key string, prefix ...string) (bool, error)

	// Obtain will obtain a new redis lock with the given key, ttl and options
	// to facilitate distributed lock functionality.
	//
	// >> It is the responsibility of the caller to manage the lock lifetime. <<
	//
	// https://pkg.go.dev/github.com/bsm/redislock
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

type State struct {
	opts *Options
	log  *zap.Logger
}

type Options struct {
	Prefix      string
	Log         *zap.Logger
	RedisClient *redis.Client
	RedisLock   *redislock.Client
}

func New(opts *Options) (*State, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &State{
		opts: opts,
		log:  opts.Log.With(zap.String("pkg", "state")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options are required")
	}

	if opts.Prefix == "" {
		return errors.New("prefix is required")
	}

	if opts.Log == nil {
		return errors.New("Log is required")
	}

	if opts.RedisClient == nil {
		return errors.New("RedisClient is required")
	}

	if opts.RedisLock == nil {
		return errors.New("RedisLock is required")
	}

	if !ValidPrefixRegex.MatchString(opts.Prefix) {
		return fmt.Errorf("prefix must match '%s' regex", ValidPrefixRegex)
	}

	return nil
}

func (s *State) Get(ctx context.Context, key string, prefix ...string) (string, error) {
	key, err := s.buildKey(key, prefix)
	if err != nil {
		return "", errors.Wrap(err, "unable to build key")
	}

	value, err := s.opts.RedisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrDoesNotExist
		}

		return "", errors.Wrap(err, "unable to get key")
	}

	return value, nil
}

func (s *State) Set(ctx context.Context, key, value string, prefix ...string) error {
	key, err := s.buildKey(key, prefix)
	if err != nil {
		return errors.Wrap(err, "unable to build key")
	}

	if err := s.opts.RedisClient.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "unable to set key")
	}

	return nil
}

func (s *State) Delete(ctx context.Context, key string, prefix ...string) error {
	key, err := s.buildKey(key, prefix)
	if err != nil {
		return errors.Wrap(err, "unable to build key")
	}

	if err := s.opts.RedisClient.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "unable to delete key")
	}

	return nil
}

func (s *State) Exists(ctx context.Context, key string, prefix ...string) (bool, error) {
	key, err := s.buildKey(key, prefix)
	if err != nil {
		return false, errors.Wrap(err, "unable to build key")
	}

	n, err := s.opts.RedisClient.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "unable to check key existence")
	}

	return n > 0, nil
}

func (s *State) Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error) {
	key, err := s.buildKey(key, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build key")
	}

	return s.opts.RedisLock.Obtain(ctx, key, ttl, opt)
}

func (s *State) buildKey(key string, prefix []string) (string, error) {
	if key == "" {
		return "", errors.New("key cannot be empty")
	}

	parts := append([]string{s.opts.Prefix}, prefix...)
	parts = append(parts, key)

	return strings.Join(parts, ":"), nil
}
