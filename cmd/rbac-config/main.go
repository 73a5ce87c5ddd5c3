package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/oarkflow/rbac"
	"github.com/oarkflow/rbac/logger"
	"github.com/oarkflow/rbac/stores"
	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	_ "modernc.org/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "convert":
		err = handleConvert(args)
	case "validate":
		err = handleValidate(args)
	case "stats":
		err = handleStats(args)
	case "check":
		err = handleCheck(args)
	case "report":
		err = handleReport(args)
	case "sync":
		err = handleSync(args)
	case "save":
		err = handleSave(args)
	case "export":
		err = handleExport(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rbac-config - Configuration tool for rbac")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rbac-config convert <input> <output>               - Convert between formats")
	fmt.Println("  rbac-config validate <file>                        - Validate configuration")
	fmt.Println("  rbac-config stats <file>                           - Show configuration statistics")
	fmt.Println("  rbac-config check <file> --identity <id> ...       - Evaluate one permission check")
	fmt.Println("  rbac-config report <file> --identity <id>          - Print an access report")
	fmt.Println("  rbac-config sync <file> --identity <id> --type <t> - Sync provider roles and report")
	fmt.Println("  rbac-config save <file> --sqlite <db>|--redis <addr> - Persist a configuration")
	fmt.Println("  rbac-config export <output> --sqlite <db>|--redis <addr> - Export a persisted snapshot")
	fmt.Println()
	fmt.Println("Supported formats: .rbac, .dsl, .yaml, .yml, .json, .bin")
}

// commonFlags are shared by every subcommand that builds a store.
type commonFlags struct {
	logFormat string
	quiet     bool
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.logFormat, "log-format", "phuslu", "log backend: phuslu or slog")
	fs.BoolVarP(&c.quiet, "quiet", "q", false, "discard log output")
}

func (c *commonFlags) logger() logger.Logger {
	switch {
	case c.quiet:
		return logger.NewNullLogger()
	case c.logFormat == "slog":
		return logger.NewSLogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	return logger.NewPhusluLogger("rbac-config")
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("rbac-config "+name, pflag.ContinueOnError)
}

func parsePositional(fs *pflag.FlagSet, args []string, n int, usage string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < n {
		return nil, fmt.Errorf("usage: rbac-config %s", usage)
	}
	return fs.Args(), nil
}

func loadStore(filename string, flags *commonFlags) (*rbac.Store, *rbac.Config, error) {
	cfg, err := rbac.NewConfigLoader().LoadFile(filename)
	if err != nil {
		return nil, nil, err
	}
	s := rbac.NewStore(rbac.WithStoreLogger(flags.logger()))
	if err := s.ApplyConfig(cfg); err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func handleConvert(args []string) error {
	fs := newFlagSet("convert")
	pos, err := parsePositional(fs, args, 2, "convert <input> <output>")
	if err != nil {
		return err
	}
	inputFile, outputFile := pos[0], pos[1]

	cfg, err := rbac.NewConfigLoader().LoadFile(inputFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.SaveFile(outputFile); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)

	inStat, _ := os.Stat(inputFile)
	outStat, _ := os.Stat(outputFile)
	if inStat != nil && outStat != nil && inStat.Size() > 0 {
		reduction := (1 - float64(outStat.Size())/float64(inStat.Size())) * 100
		if reduction > 0 {
			fmt.Printf("Size reduced by %.1f%% (%d -> %d bytes)\n", reduction, inStat.Size(), outStat.Size())
		} else {
			fmt.Printf("Size increased by %.1f%% (%d -> %d bytes)\n", -reduction, inStat.Size(), outStat.Size())
		}
	}
	return nil
}

func handleValidate(args []string) error {
	fs := newFlagSet("validate")
	pos, err := parsePositional(fs, args, 1, "validate <file>")
	if err != nil {
		return err
	}
	cfg, err := rbac.NewConfigLoader().LoadFile(pos[0])
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Permissions: %d\n", len(cfg.Permissions))
	fmt.Printf("  Roles: %d\n", len(cfg.Roles))
	fmt.Printf("  Assignments: %d\n", len(cfg.Assignments))
	return nil
}

func handleStats(args []string) error {
	fs := newFlagSet("stats")
	pos, err := parsePositional(fs, args, 1, "stats <file>")
	if err != nil {
		return err
	}
	filename := pos[0]
	cfg, err := rbac.NewConfigLoader().LoadFile(filename)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Permissions: %d\n", len(cfg.Permissions))
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Assignments: %d\n", len(cfg.Assignments))
	fmt.Println()

	if len(cfg.Permissions) > 0 {
		resources := make(map[string]int)
		conditional := 0
		for _, p := range cfg.Permissions {
			resources[p.Resource]++
			if len(p.Conditions) > 0 {
				conditional++
			}
		}
		names := make([]string, 0, len(resources))
		for r := range resources {
			names = append(names, r)
		}
		sort.Strings(names)
		fmt.Println("Permission Details:")
		fmt.Printf("  Conditional: %d\n", conditional)
		for _, r := range names {
			fmt.Printf("  %-12s %d\n", r+":", resources[r])
		}
		fmt.Println()
	}

	if len(cfg.Roles) > 0 {
		totalPerms := 0
		for _, r := range cfg.Roles {
			totalPerms += len(r.Permissions)
		}
		fmt.Println("Role Details:")
		fmt.Printf("  Total permissions: %d\n", totalPerms)
		fmt.Printf("  Avg per role:      %.1f\n", float64(totalPerms)/float64(len(cfg.Roles)))
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Seed defaults: %t\n", cfg.Engine.SeedDefaults)
	fmt.Printf("  Type mappings: %d\n", len(cfg.Engine.TypeMapping))
	return nil
}

func handleCheck(args []string) error {
	var (
		flags                                  commonFlags
		identity, permission, resource, action string
		userType, ownerID, resourceID, orgID   string
		explain                                bool
	)
	fs := newFlagSet("check")
	flags.add(fs)
	fs.StringVar(&identity, "identity", "", "identity to check")
	fs.StringVar(&permission, "permission", "", "permission id")
	fs.StringVar(&resource, "resource", "", "resource type (with --action)")
	fs.StringVar(&action, "action", "", "action (with --resource)")
	fs.StringVar(&userType, "user-type", "", "user.type for conditions")
	fs.StringVar(&ownerID, "owner", "", "resource.ownerId for conditions")
	fs.StringVar(&resourceID, "resource-id", "", "resource.id for conditions")
	fs.StringVar(&orgID, "org", "", "user.organizationId for conditions")
	fs.BoolVar(&explain, "explain", false, "print the decision trace")
	pos, err := parsePositional(fs, args, 1, "check <file> --identity <id> (--permission <id> | --resource <r> --action <a>)")
	if err != nil {
		return err
	}
	if identity == "" || (permission == "" && (resource == "" || action == "")) {
		return fmt.Errorf("check requires --identity and either --permission or --resource with --action")
	}

	s, _, err := loadStore(pos[0], &flags)
	if err != nil {
		return err
	}
	e := rbac.NewEngine(s, rbac.WithLogger(flags.logger()))

	ac := rbac.NewAccessContext(identity)
	ac.User.Type = userType
	ac.User.OrganizationID = orgID
	ac.User.Roles = s.GetRoles(identity)
	rtype := resource
	if rtype == "" {
		if p, ok := s.GetPermission(permission); ok {
			rtype = p.Resource
		}
	}
	ac.WithResource(rbac.ResourceContext{ID: resourceID, Type: rtype, OwnerID: ownerID})

	var d *rbac.Decision
	if permission != "" {
		d = e.Explain(identity, permission, ac)
	} else {
		d = e.ExplainResource(identity, resource, action, ac)
	}
	if d.Allowed {
		fmt.Printf("ALLOW (%s via %s)\n", d.Reason, d.MatchedBy)
	} else {
		fmt.Printf("DENY (%s)\n", d.Reason)
	}
	if explain {
		for _, step := range d.Trace {
			fmt.Printf("  %s\n", step)
		}
	}
	if !d.Allowed {
		os.Exit(2)
	}
	return nil
}

func handleReport(args []string) error {
	var (
		flags    commonFlags
		identity string
	)
	fs := newFlagSet("report")
	flags.add(fs)
	fs.StringVar(&identity, "identity", "", "identity to report on")
	pos, err := parsePositional(fs, args, 1, "report <file> --identity <id>")
	if err != nil {
		return err
	}
	if identity == "" {
		return fmt.Errorf("report requires --identity")
	}
	s, _, err := loadStore(pos[0], &flags)
	if err != nil {
		return err
	}
	report := rbac.NewEngine(s, rbac.WithLogger(flags.logger())).GenerateAccessReport(identity)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func handleSync(args []string) error {
	var (
		flags          commonFlags
		identity, kind string
		extra          []string
	)
	fs := newFlagSet("sync")
	flags.add(fs)
	fs.StringVar(&identity, "identity", "", "identity id from the provider")
	fs.StringVar(&kind, "type", "", "user type from the provider")
	fs.StringSliceVar(&extra, "role", nil, "extra role grants (repeatable)")
	pos, err := parsePositional(fs, args, 1, "sync <file> --identity <id> --type <type> [--role <id>]...")
	if err != nil {
		return err
	}
	s, cfg, err := loadStore(pos[0], &flags)
	if err != nil {
		return err
	}
	syncer := rbac.NewSyncer(s, rbac.WithTypeMapping(cfg.Engine.TypeMapping), rbac.WithSyncLogger(flags.logger()))
	roles := syncer.SyncIdentity(rbac.Identity{ID: identity, Type: kind, Roles: extra})
	fmt.Printf("Synced %s: %v\n", identity, roles)
	return nil
}

type backendFlags struct {
	sqlitePath  string
	redisAddr   string
	redisPrefix string
}

func (b *backendFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&b.sqlitePath, "sqlite", "", "sqlite database file")
	fs.StringVar(&b.redisAddr, "redis", "", "redis address host:port")
	fs.StringVar(&b.redisPrefix, "redis-prefix", "rbac:", "redis key prefix")
}

// open returns the configured snapshot store and a close func.
func (b *backendFlags) open() (stores.SnapshotStore, func(), error) {
	switch {
	case b.sqlitePath != "":
		sqlDB, err := sql.Open("sqlite", b.sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db := squealx.NewDb(sqlDB, "sqlite", b.sqlitePath)
		if err := stores.Migrate(db); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return stores.NewSQLSnapshotStore(db), func() { sqlDB.Close() }, nil
	case b.redisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: b.redisAddr})
		return stores.NewRedisSnapshotStore(client, b.redisPrefix), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("one of --sqlite or --redis is required")
}

func handleSave(args []string) error {
	var (
		flags   commonFlags
		backend backendFlags
	)
	fs := newFlagSet("save")
	flags.add(fs)
	backend.add(fs)
	pos, err := parsePositional(fs, args, 1, "save <file> --sqlite <db>|--redis <addr>")
	if err != nil {
		return err
	}
	s, _, err := loadStore(pos[0], &flags)
	if err != nil {
		return err
	}
	dst, closeFn, err := backend.open()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := stores.Persist(context.Background(), s, dst); err != nil {
		return err
	}
	snap := s.Snapshot()
	fmt.Printf("Saved %d permissions, %d roles, %d assignments\n", len(snap.Permissions), len(snap.Roles), len(snap.Assignments))
	return nil
}

func handleExport(args []string) error {
	var (
		flags   commonFlags
		backend backendFlags
	)
	fs := newFlagSet("export")
	flags.add(fs)
	backend.add(fs)
	pos, err := parsePositional(fs, args, 1, "export <output> --sqlite <db>|--redis <addr>")
	if err != nil {
		return err
	}
	src, closeFn, err := backend.open()
	if err != nil {
		return err
	}
	defer closeFn()
	s := rbac.NewStore(rbac.WithStoreLogger(flags.logger()))
	if err := stores.Hydrate(context.Background(), s, src); err != nil {
		return err
	}
	if err := rbac.ConfigFromStore(s).SaveFile(pos[0]); err != nil {
		return err
	}
	fmt.Printf("Exported snapshot -> %s\n", pos[0])
	return nil
}
