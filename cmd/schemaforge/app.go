package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/burugo/schemaforge"
	"github.com/burugo/schemaforge/internal/migration"
)

const (
	defaultConfigFile    = "schemaforge.yml"
	defaultMigrationsDir = "db/migrations"
)

type options struct {
	ConfigPath    string
	Environment   string
	URL           string
	MigrationsDir string
	Target        int64
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Verbose       bool
}

// settings is the resolved connection and migration source of one run.
type settings struct {
	Config        schemaforge.Config
	MigrationsDir string
}

// App is what a command needs, assembled by initializeApp.
type App struct {
	Settings settings
	Adapter  schemaforge.Adapter
	Migrator *migration.Migrator
}

func parseFlags(args []string, out io.Writer) (*options, string, error) {
	o := &options{}
	fs := pflag.NewFlagSet("schemaforge", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&o.ConfigPath, "config", "c", defaultConfigFile, "YAML configuration file")
	fs.StringVarP(&o.Environment, "environment", "e", "", "environment to use, the configured default when empty")
	fs.StringVar(&o.URL, "url", "", "database URL, replaces the configuration file")
	fs.StringVarP(&o.MigrationsDir, "migrations", "m", "", "migrations directory")
	fs.Int64VarP(&o.Target, "target", "t", 0, "target version, 0 for all (migrate) or the latest (rollback)")
	fs.StringVar(&o.RedisAddr, "redis", "", "redis address for the migration lock, no lock when empty")
	fs.StringVar(&o.RedisPassword, "redis-password", "", "redis password")
	fs.IntVar(&o.RedisDB, "redis-db", 0, "redis database")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "log every statement")
	fs.Usage = func() {
		fmt.Fprintln(out, "usage: schemaforge [flags] migrate|rollback|status|create-db|drop-db")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, "", errors.New("exactly one command is required")
	}
	return o, fs.Arg(0), nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, cmd, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	app, cleanup, err := initializeApp(o)
	if err != nil {
		return err
	}
	defer cleanup()

	switch cmd {
	case "migrate":
		return app.Migrator.Migrate(ctx, o.Target)
	case "rollback":
		return app.Migrator.Rollback(ctx, o.Target)
	case "status":
		return printStatus(ctx, app.Migrator, out)
	case "create-db":
		return createDatabase(ctx, app)
	case "drop-db":
		return dropDatabase(ctx, app)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printStatus(ctx context.Context, m *migration.Migrator, out io.Writer) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tVERSION\tNAME\tAPPLIED AT")
	for _, s := range statuses {
		state, name, at := "down", s.Name, ""
		if s.Applied {
			state = "up"
			at = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		if s.Missing {
			name = "** MISSING **"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", state, s.Version, name, at)
	}
	return w.Flush()
}

// serverSession connects without the configured database where the engine needs a session
// for database management.
func serverSession(ctx context.Context, a schemaforge.Adapter) error {
	if sc, ok := a.(schemaforge.ServerConnector); ok {
		return sc.ConnectServer(ctx)
	}
	return nil
}

func createDatabase(ctx context.Context, app *App) error {
	if err := serverSession(ctx, app.Adapter); err != nil {
		return err
	}
	name := app.Settings.Config.Name
	exists, err := app.Adapter.HasDatabase(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return app.Adapter.CreateDatabase(ctx, name)
}

func dropDatabase(ctx context.Context, app *App) error {
	if err := serverSession(ctx, app.Adapter); err != nil {
		return err
	}
	return app.Adapter.DropDatabase(ctx, app.Settings.Config.Name)
}

// resolveSettings builds the settings from --url or from the configuration file. A relative
// migrations path in the file is taken relative to the file.
func resolveSettings(o *options) (settings, error) {
	s := settings{MigrationsDir: o.MigrationsDir}
	if o.URL != "" {
		cfg, err := schemaforge.ParseURL(o.URL)
		if err != nil {
			return settings{}, err
		}
		s.Config = cfg
		if s.MigrationsDir == "" {
			s.MigrationsDir = defaultMigrationsDir
		}
		return s, nil
	}

	fc, err := schemaforge.LoadFile(o.ConfigPath)
	if err != nil {
		return settings{}, err
	}
	cfg, err := fc.Environment(o.Environment)
	if err != nil {
		return settings{}, err
	}
	s.Config = cfg
	if s.MigrationsDir == "" {
		dir := fc.Paths.Migrations
		if dir == "" {
			dir = defaultMigrationsDir
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(o.ConfigPath), dir)
		}
		s.MigrationsDir = dir
	}
	return s, nil
}
