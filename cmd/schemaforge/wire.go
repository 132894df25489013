//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
)

// initializeApp assembles the adapter, lock and migrator for one run.
func initializeApp(o *options) (*App, func(), error) {
	wire.Build(
		provideSettings,
		provideAdapter,
		provideMigrations,
		provideLocker,
		provideMigrator,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
