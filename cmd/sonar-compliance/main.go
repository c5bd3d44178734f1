package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/natefinch/lumberjack.v2"
	"k8s.io/client-go/util/flowcontrol"
	ctrlzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/chicoribas/sonar-compliance/internal/audit"
	"github.com/chicoribas/sonar-compliance/internal/connector"
	"github.com/chicoribas/sonar-compliance/internal/provision"
)

const logoutTimeout = 10 * time.Second

func main() {
	var (
		app   = kingpin.New(filepath.Base(os.Args[0]), "Process Sonar project information.")
		debug = app.Flag("debug", "Run with debug logging.").Short('d').Bool()

		platform     = app.Flag("platform", "Sonar platform to connect to.").Default(string(connector.SonarQube)).Envar("SONAR_PLATFORM").Enum(connector.Platforms()...)
		host         = app.Flag("host", "SonarQube host. Ignored for SonarCloud.").Envar("SONAR_HOST").String()
		port         = app.Flag("port", "SonarQube port. Ignored for SonarCloud.").Envar("SONAR_PORT").Int()
		organization = app.Flag("organization", "Organization key. Required for SonarCloud.").Envar("SONAR_ORGANIZATION").String()
		qps          = app.Flag("qps", "Maximum web api calls per second, 0 for unlimited.").Default("0").Float64()
		burst        = app.Flag("burst", "Maximum burst of web api calls when --qps is set.").Default("5").Int()

		logFile       = app.Flag("log-file", "Rotating log file.").Default("master.log").String()
		logMaxSize    = app.Flag("log-max-size", "Size in megabytes before the log file is rotated.").Default("2").Int()
		logMaxBackups = app.Flag("log-max-backups", "Number of rotated log files to keep.").Default("10").Int()

		auditCmd    = app.Command("audit", "Make the main branch of every project be named main.").Default()
		dryRun      = auditCmd.Flag("dry-run", "Report non compliant projects without changing them.").Bool()
		concurrency = auditCmd.Flag("concurrency", "Projects audited at the same time.").Default("1").Int()

		projectCmd = app.Command("project", "Create a project if it does not exist.")
		projectKey = projectCmd.Flag("project", "Project key.").Required().String()
		projectNm  = projectCmd.Flag("name", "Project name. Defaults to the key.").String()
		visibility = projectCmd.Flag("visibility", "Project visibility.").Enum("", "private", provision.VisibilityPublic)

		checkCmd = app.Command("check", "Check the credentials read from "+connector.TokenEnv+".")
	)
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	rotating := &lumberjack.Logger{
		Filename:   *logFile,
		MaxSize:    *logMaxSize,
		MaxBackups: *logMaxBackups,
	}
	defer rotating.Close() //nolint:errcheck

	log := ctrlzap.NewRaw(ctrlzap.UseDevMode(*debug), ctrlzap.WriteTo(io.MultiWriter(os.Stdout, rotating))).Named("sonar-compliance")
	defer log.Sync() //nolint:errcheck

	opts := connector.Options{
		Platform:     *platform,
		Host:         *host,
		Port:         *port,
		Organization: *organization,
	}
	if cmd != checkCmd.FullCommand() {
		fatalIfError(app, log, rotating, opts.RequireOrganization(), "Cannot start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	copts := []connector.Option{connector.WithLogger(log.Named("connector"))}
	if *qps > 0 {
		copts = append(copts, connector.WithRateLimiter(flowcontrol.NewTokenBucketRateLimiter(float32(*qps), *burst)))
	}

	log.Debug("Starting", zap.Stringer("options", opts))
	conn, err := connector.New(ctx, opts, copts...)
	fatalIfError(app, log, rotating, err, "Cannot create connector")
	defer func() {
		lctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		conn.Close(lctx)
	}()

	log.Info("Connected", zap.String("platform", string(conn.Platform())), zap.String("url", conn.URL()), zap.String("organization", conn.Organization()))

	if !conn.Authenticated() {
		log.Warn("Authentication is not set")
		return
	}

	switch cmd {
	case checkCmd.FullCommand():
		log.Info("Credentials are valid")
	case auditCmd.FullCommand():
		runAudit(ctx, conn, log, *concurrency, *dryRun)
	case projectCmd.FullCommand():
		runProject(ctx, conn, log, provision.Request{Key: *projectKey, Name: *projectNm, Visibility: *visibility})
	}
}

func runAudit(ctx context.Context, conn *connector.Connector, log *zap.Logger, concurrency int, dryRun bool) {
	a := audit.New(conn,
		audit.WithLogger(log.Named("audit")),
		audit.WithConcurrency(concurrency),
		audit.WithDryRun(dryRun),
	)

	report, err := a.Run(ctx)
	if err != nil {
		log.Error("Audit aborted", zap.Error(err), zap.String("kind", failureKind(err)))
		return
	}
	if err := report.Err(); err != nil {
		log.Warn("Some projects could not be audited", zap.Error(err))
	}
	for _, k := range report.Pending {
		log.Info("Project needs remediation", zap.String("project", k))
	}
}

func runProject(ctx context.Context, conn *connector.Connector, log *zap.Logger, req provision.Request) {
	project, created, err := provision.EnsureProject(ctx, conn, req, log.Named("provision"))
	if err != nil {
		log.Error("Project not generated", zap.Error(err), zap.String("kind", failureKind(err)))
		return
	}
	if created {
		fmt.Println(project)
	}
}

// fatalIfError logs err and flushes the log file before app terminates.
// Deferred calls do not run on termination.
func fatalIfError(app *kingpin.Application, log *zap.Logger, file io.Closer, err error, msg string) {
	if err == nil {
		return
	}
	log.Error(msg, zap.Error(err), zap.String("kind", failureKind(err)))
	_ = log.Sync()
	_ = file.Close()
	app.FatalIfError(err, msg)
}

// failureKind tells configuration mistakes apart from failures of the web api.
func failureKind(err error) string {
	switch {
	case connector.IsConfiguration(err):
		return "configuration"
	case connector.IsRemote(err):
		return "remote"
	}
	return "internal"
}
