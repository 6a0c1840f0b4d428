package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-ferret/cli/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv runs commands inside a temporary working directory.
type testEnv struct {
	t      *testing.T
	tmpDir string
}

// setupTestEnv creates a temporary directory and changes to it.
// The original directory is restored on cleanup.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()

	origWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(origWd) })

	return &testEnv{t: t, tmpDir: tmpDir}
}

// configOption is a function that modifies a config
type configOption func(*config.Config)

func withDriver(driver string) configOption {
	return func(c *config.Config) {
		c.Database.Driver = driver
	}
}

func withSerializer(name string) configOption {
	return func(c *config.Config) {
		c.Serializer = name
	}
}

func withLimit(limit int64) configOption {
	return func(c *config.Config) {
		c.Counter.Limit = limit
	}
}

// createConfig writes a ferret.yaml to the test directory.
func (e *testEnv) createConfig(opts ...configOption) *config.Config {
	e.t.Helper()
	cfg := config.DefaultConfig()
	cfg.Project.Name = "test-app"
	for _, opt := range opts {
		opt(cfg)
	}
	require.NoError(e.t, cfg.Save(e.tmpDir))
	return cfg
}

// run executes the root command with args and returns stdout and stderr.
func (e *testEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	return execute(args...)
}

func execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer

	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// getSubcommandNames returns a map of subcommand names for a parent command
func getSubcommandNames(cmd *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	return names
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "ferret", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("no-color"))

	names := getSubcommandNames(cmd)
	for _, want := range []string{"init", "migrate", "counter", "stream", "diagnose", "version"} {
		assert.True(t, names[want], "%s command should be registered", want)
	}
}

func TestCommandSubcommands(t *testing.T) {
	tests := []struct {
		parent *cobra.Command
		want   []string
	}{
		{NewCounterCommand(), []string{"increment", "reset", "show"}},
		{NewStreamCommand(), []string{"info", "events"}},
	}

	for _, tt := range tests {
		t.Run(tt.parent.Name(), func(t *testing.T) {
			names := getSubcommandNames(tt.parent)
			assert.Len(t, names, len(tt.want))
			for _, want := range tt.want {
				assert.True(t, names[want], want)
			}
		})
	}
}

func TestSubcommandFlags(t *testing.T) {
	tests := []struct {
		path  []string
		flags []string
	}{
		{[]string{"init"}, []string{"name", "driver", "serializer", "interactive"}},
		{[]string{"migrate"}, []string{"timeout"}},
		{[]string{"counter", "increment"}, []string{"times", "trace", "metrics"}},
		{[]string{"counter", "show"}, []string{"history", "trace", "metrics"}},
		{[]string{"stream", "events"}, []string{"from"}},
	}

	root := NewRootCommand()
	for _, tt := range tests {
		t.Run(strings.Join(tt.path, " "), func(t *testing.T) {
			cmd, _, err := root.Find(tt.path)
			require.NoError(t, err)
			for _, flag := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
			}
		})
	}
}

func TestInitCommand(t *testing.T) {
	t.Run("writes a config in the current directory", func(t *testing.T) {
		env := setupTestEnv(t)

		out, _, err := env.run("init", "--name", "shop", "--serializer", "msgpack")
		require.NoError(t, err)
		assert.Contains(t, out, "Created ferret.yaml")
		assert.Contains(t, out, "ferret migrate")

		cfg, err := config.Load(env.tmpDir)
		require.NoError(t, err)
		assert.Equal(t, "shop", cfg.Project.Name)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "msgpack", cfg.Serializer)
	})

	t.Run("creates the target directory", func(t *testing.T) {
		env := setupTestEnv(t)

		_, _, err := env.run("init", "nested/app", "--driver", "memory")
		require.NoError(t, err)

		cfg, err := config.Load(filepath.Join(env.tmpDir, "nested", "app"))
		require.NoError(t, err)
		assert.Equal(t, "app", cfg.Project.Name)
		assert.Equal(t, "memory", cfg.Database.Driver)
	})

	t.Run("leaves an existing config alone", func(t *testing.T) {
		env := setupTestEnv(t)
		env.createConfig(withDriver("memory"))

		out, _, err := env.run("init", "--driver", "postgres")
		require.NoError(t, err)
		assert.Contains(t, out, "already exists")

		cfg, err := config.Load(env.tmpDir)
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Database.Driver)
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		setupTestEnv(t)

		_, _, err := execute("init", "--driver", "mysql")
		assert.ErrorContains(t, err, "unsupported database driver")

		_, _, err = execute("init", "--serializer", "xml")
		assert.ErrorContains(t, err, "unsupported serializer")
	})
}

func TestNextSteps(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Database.Driver = "postgres"
	assert.Contains(t, nextSteps(cfg), "DATABASE_URL")

	cfg.Database.Driver = "memory"
	steps := nextSteps(cfg)
	assert.NotContains(t, steps, "ferret migrate")
	assert.Contains(t, steps, "ferret counter increment")
}

func TestMigrateCommand(t *testing.T) {
	t.Run("requires a config", func(t *testing.T) {
		setupTestEnv(t)

		_, _, err := execute("migrate")
		assert.ErrorContains(t, err, "no ferret.yaml found")
	})

	t.Run("memory needs nothing", func(t *testing.T) {
		env := setupTestEnv(t)
		env.createConfig(withDriver("memory"))

		out, _, err := env.run("migrate")
		require.NoError(t, err)
		assert.Contains(t, out, "doesn't require migrations")
	})

	t.Run("creates the sqlite schema", func(t *testing.T) {
		env := setupTestEnv(t)
		env.createConfig()

		out, _, err := env.run("migrate")
		require.NoError(t, err)
		assert.Contains(t, out, "Event log ready")

		_, err = os.Stat(filepath.Join(env.tmpDir, "ferret.db"))
		assert.NoError(t, err)

		_, _, err = env.run("migrate")
		assert.NoError(t, err, "migrate is idempotent")
	})

	t.Run("postgres without a URL", func(t *testing.T) {
		env := setupTestEnv(t)
		t.Setenv("DATABASE_URL", "")
		cfg := config.DefaultConfig()
		cfg.Database.Driver = "postgres"
		require.NoError(t, os.WriteFile(filepath.Join(env.tmpDir, config.ConfigFileName), []byte(config.GenerateYAML(cfg)), 0644))

		_, _, err := env.run("migrate")
		assert.ErrorContains(t, err, "DATABASE_URL")
	})
}

func TestCounterCommand_SQLite(t *testing.T) {
	env := setupTestEnv(t)
	env.createConfig()

	out, _, err := env.run("counter", "increment", "clicks", "--times", "12")
	require.NoError(t, err)
	assert.Equal(t, 10, strings.Count(out, "1 event(s)"))
	assert.Equal(t, 2, strings.Count(out, "limit reached"))

	out, _, err = env.run("counter", "show", "clicks", "--history")
	require.NoError(t, err)
	assert.Contains(t, out, "counter-name=clicks")
	assert.Regexp(t, `Version:\s+9`, out)
	assert.Regexp(t, `Count:\s+10`, out)
	assert.Equal(t, 10, strings.Count(out, "incremented"))

	out, _, err = env.run("counter", "reset", "clicks")
	require.NoError(t, err)
	assert.Contains(t, out, "1 event(s)")

	out, _, err = env.run("counter", "increment", "clicks")
	require.NoError(t, err)
	assert.Contains(t, out, "1 event(s)")

	out, _, err = env.run("counter", "show", "clicks")
	require.NoError(t, err)
	assert.Regexp(t, `Version:\s+11`, out)
	assert.Regexp(t, `Count:\s+1`, out)
}

func TestCounterCommand_Serializers(t *testing.T) {
	for _, name := range config.Serializers {
		t.Run(name, func(t *testing.T) {
			env := setupTestEnv(t)
			env.createConfig(withSerializer(name), withLimit(3))

			out, _, err := env.run("counter", "increment", "views", "--times", "4")
			require.NoError(t, err)
			assert.Equal(t, 3, strings.Count(out, "1 event(s)"))
			assert.Contains(t, out, "limit reached")

			out, _, err = env.run("counter", "show", "views")
			require.NoError(t, err)
			assert.Regexp(t, `Count:\s+3`, out)
		})
	}
}

func TestCounterCommand_Memory(t *testing.T) {
	env := setupTestEnv(t)
	env.createConfig(withDriver("memory"))

	out, _, err := env.run("counter", "increment", "clicks", "--times", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "1 event(s)"))

	// Each invocation starts with an empty in-memory log.
	out, _, err = env.run("counter", "show", "clicks")
	require.NoError(t, err)
	assert.Contains(t, out, "has no history")

	out, _, err = env.run("counter", "reset", "clicks")
	require.NoError(t, err)
	assert.Contains(t, out, "counter has no history")
}

func TestCounterCommand_Errors(t *testing.T) {
	t.Run("times must be positive", func(t *testing.T) {
		env := setupTestEnv(t)
		env.createConfig(withDriver("memory"))

		_, _, err := env.run("counter", "increment", "clicks", "--times", "0")
		assert.ErrorContains(t, err, "--times")
	})

	t.Run("invalid config", func(t *testing.T) {
		env := setupTestEnv(t)
		env.createConfig(withSerializer("xml"))

		_, _, err := env.run("counter", "show", "clicks")
		assert.ErrorContains(t, err, "invalid ferret.yaml")
	})

	t.Run("missing name", func(t *testing.T) {
		_, _, err := execute("counter", "increment")
		assert.Error(t, err)
	})
}

func TestCounterCommand_Metrics(t *testing.T) {
	env := setupTestEnv(t)
	env.createConfig(withDriver("memory"), withLimit(1))

	out, _, err := env.run("counter", "increment", "clicks", "--times", "2", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "ferret_commands_total")
	assert.Contains(t, out, `outcome="ok"`)
	assert.Contains(t, out, `outcome="rejected"`)
	assert.Contains(t, out, "ferret_eventlog_operations_total")
	assert.Contains(t, out, `service="test-app"`)
}

func TestCounterCommand_Trace(t *testing.T) {
	env := setupTestEnv(t)
	env.createConfig(withDriver("memory"))

	_, stderr, err := env.run("counter", "increment", "clicks", "--trace")
	require.NoError(t, err)
	assert.Contains(t, stderr, "transact.increment")
	assert.Contains(t, stderr, "eventlog.append")
	assert.Contains(t, stderr, "counter-name=clicks")
}

func TestStreamCommand(t *testing.T) {
	env := setupTestEnv(t)
	env.createConfig()

	_, _, err := env.run("counter", "increment", "clicks", "--times", "3")
	require.NoError(t, err)

	t.Run("info", func(t *testing.T) {
		out, _, err := env.run("stream", "info", "counter-name=clicks")
		require.NoError(t, err)
		assert.Contains(t, out, "counter-name=clicks")
		assert.Contains(t, out, "Category")
		assert.Regexp(t, `Events\s+│\s+3`, out)
	})

	t.Run("info on a missing stream", func(t *testing.T) {
		_, _, err := env.run("stream", "info", "counter-name=nope")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("events", func(t *testing.T) {
		out, _, err := env.run("stream", "events", "counter-name=clicks")
		require.NoError(t, err)
		assert.Equal(t, 3, strings.Count(out, "incremented"))
		assert.Contains(t, out, `"name": "clicks"`)
	})

	t.Run("events after a version", func(t *testing.T) {
		out, _, err := env.run("stream", "events", "counter-name=clicks", "--from", "2")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(out, "incremented"))
	})

	t.Run("empty stream", func(t *testing.T) {
		out, _, err := env.run("stream", "events", "counter-name=nope")
		require.NoError(t, err)
		assert.Contains(t, out, "No events")
	})
}

func TestDiagnose(t *testing.T) {
	t.Run("healthy sqlite setup", func(t *testing.T) {
		env := setupTestEnv(t)
		env.createConfig(withSerializer("protobuf"))

		var buf bytes.Buffer
		assert.True(t, runDiagnose(&buf, defaultChecks()))
		assert.Contains(t, buf.String(), "All checks passed")
		assert.Contains(t, buf.String(), "protobuf round trip")
	})

	t.Run("no config", func(t *testing.T) {
		setupTestEnv(t)

		out, _, err := execute("diagnose")
		require.NoError(t, err)
		assert.Contains(t, out, "Some checks failed")
		assert.Contains(t, out, "ferret init")
	})

	t.Run("failing check", func(t *testing.T) {
		var buf bytes.Buffer
		ok := runDiagnose(&buf, []DiagnosticCheck{{
			Name: "Broken",
			Check: func() CheckResult {
				return newCheckResult("Broken", StatusError, "boom").withRecommendation("fix it")
			},
		}})
		assert.False(t, ok)
		assert.Contains(t, buf.String(), "FAILED")
		assert.Contains(t, buf.String(), "fix it")
	})
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewVersionCommand("1.2.3", "abc123", "2026-01-01")
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "1.2.3")
	assert.Contains(t, buf.String(), "abc123")
	assert.Contains(t, buf.String(), "Library")
}

func TestExecute(t *testing.T) {
	out, _, err := execute("--help")
	require.NoError(t, err)
	assert.Contains(t, out, "ferret counter increment")
}

func TestNewSerializer(t *testing.T) {
	for _, name := range append([]string{""}, config.Serializers...) {
		s, err := NewSerializer(name)
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}

	_, err := NewSerializer("xml")
	assert.ErrorContains(t, err, "unsupported serializer")
}

func TestAdapterFactory(t *testing.T) {
	cfg := config.DefaultConfig()

	factory, err := NewAdapterFactory(cfg, "/srv/app")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/app", "ferret.db"), factory.Location())
	assert.False(t, factory.IsMemoryDriver())

	cfg.Database.Driver = "memory"
	factory, err = NewAdapterFactory(cfg, "")
	require.NoError(t, err)
	assert.True(t, factory.IsMemoryDriver())

	adapter, err := factory.CreateAdapter(context.Background())
	require.NoError(t, err)
	assert.NoError(t, adapter.Ping(context.Background()))

	cfg.Database.Driver = "oracle"
	_, err = NewAdapterFactory(cfg, "")
	require.NoError(t, err)
	_, err = (&AdapterFactory{config: cfg}).CreateAdapter(context.Background())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgres://db:5432/app", redactURL("postgres://user:secret@db:5432/app"))
	assert.Equal(t, "postgres://db/app", redactURL("postgres://db/app"))
	assert.Equal(t, "host=db", redactURL("host=db"))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info")

	logger.Debug("hidden")
	logger.Info("Command committed", "type", "increment")
	logger.Warn("Command conflicted")
	logger.Error("Command failed", "error", "boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "type=increment")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "error=boom")

	assert.Equal(t, "WARN", parseLevel("bogus").String())
	assert.Equal(t, "DEBUG", parseLevel("DEBUG").String())
}
