package commands

import (
	"context"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/valtask/internal/conventions"
	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/poll"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// TaskServiceHTTP uses the validation task REST API.
	TaskServiceHTTP = "http"
	// TaskServiceFake uses an in-process scripted task service.
	TaskServiceFake = "fake"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug        bool
	NoLog        bool
	NoColor      bool
	LoggerType   string
	DBPath       string
	TaskService  string
	APIURL       string
	APIToken     string
	FakeScenario string
	PollInterval time.Duration

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := conventions.DBPath(homedir.HomeDir())
	app.Flag("db-path", "Path to the SQLite database file.").Envar(conventions.EnvPrefix + "_DB_PATH").Default(defaultDBPath).StringVar(&c.DBPath)

	app.Flag("task-service", "Validation task service implementation.").Default(TaskServiceHTTP).EnumVar(&c.TaskService, TaskServiceHTTP, TaskServiceFake)
	app.Flag("api-url", "Validation task API base URL.").StringVar(&c.APIURL)
	app.Flag("api-token", "Validation task API bearer token.").StringVar(&c.APIToken)
	app.Flag("fake-scenario", "YAML scenario file for the fake task service.").StringVar(&c.FakeScenario)
	app.Flag("poll-interval", "Task status polling interval.").Default(poll.DefaultInterval.String()).DurationVar(&c.PollInterval)

	return c
}
