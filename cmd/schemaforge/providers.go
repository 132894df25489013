package main

import (
	"log"

	"github.com/burugo/schemaforge"
	redislock "github.com/burugo/schemaforge/drivers/lock/redis"
	"github.com/burugo/schemaforge/internal/migration"
)

type logToggler interface {
	EnableLog(bool)
}

func provideSettings(o *options) (settings, error) {
	return resolveSettings(o)
}

// provideAdapter creates the adapter for the configured engine. It is connected lazily.
func provideAdapter(o *options, s settings) (schemaforge.Adapter, func(), error) {
	a, err := schemaforge.New(s.Config)
	if err != nil {
		return nil, nil, err
	}
	if lt, ok := a.(logToggler); ok {
		lt.EnableLog(o.Verbose)
	}
	cleanup := func() {
		if err := a.Disconnect(); err != nil {
			log.Printf("Error closing DB adapter: %v", err)
		}
	}
	return a, cleanup, nil
}

func provideMigrations(s settings) ([]migration.Migration, error) {
	return migration.Load(s.MigrationsDir)
}

// provideLocker returns a redis lock when --redis is set and an in-process one otherwise.
func provideLocker(o *options) (migration.Locker, func(), error) {
	if o.RedisAddr == "" {
		return migration.NewLocalLocker(), func() {}, nil
	}
	l, err := redislock.New(nil, &redislock.Options{
		Addr:     o.RedisAddr,
		Password: o.RedisPassword,
		DB:       o.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := l.Close(); err != nil {
			log.Printf("Error closing redis lock client: %v", err)
		}
	}
	return l, cleanup, nil
}

// provideMigrator locks on database name and ledger table, so runs from different hosts
// against the same database exclude each other.
func provideMigrator(a schemaforge.Adapter, migs []migration.Migration, l migration.Locker, s settings) (*migration.Migrator, error) {
	return migration.NewMigrator(a, migs,
		migration.WithLocker(l),
		migration.WithLockKey(migration.LockKey(s.Config.Name, a.SchemaTableName())),
	)
}
