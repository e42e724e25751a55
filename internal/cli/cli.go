// Package cli implements authctl, a terminal frontend for the auth API.
//
// Every command runs through apperr.Handler with Rethrow set: the terminal
// notifier prints the translated message once, and the original error
// travels back to Main, which only turns it into the exit status.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"authflow/internal/adapter/authclient"
	"authflow/internal/apperr"
	"authflow/internal/i18n"
	"authflow/internal/platform/httpclient"
	"authflow/internal/platform/logger"
)

// Settings are the defaults the root flags start from.
type Settings struct {
	BaseURL string
	Timeout time.Duration
	Locale  string
	Env     string
	LogFile string
}

// App holds what commands share.
type App struct {
	settings Settings
	out      io.Writer
	errOut   io.Writer
	cat      *i18n.Catalog

	verbose bool
	log     *slog.Logger
	errors  *apperr.Handler
	client  *authclient.Client
	handled bool // a command's failure was already printed
}

// NewApp creates an App writing results to out and failures to errOut.
func NewApp(s Settings, cat *i18n.Catalog, out, errOut io.Writer) *App {
	return &App{settings: s, cat: cat, out: out, errOut: errOut}
}

// Command builds the root command.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Talk to the authflow API",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.setup()
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.settings.BaseURL, "url", a.settings.BaseURL, "API base URL")
	f.DurationVar(&a.settings.Timeout, "timeout", a.settings.Timeout, "request timeout")
	f.StringVar(&a.settings.Locale, "locale", a.settings.Locale, "message language (en, es)")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "log diagnostics to stderr")

	root.AddCommand(a.signUpCmd(), a.validateCmd(), a.signInCmd(), a.socialCmd(), a.passwordCmd())
	return root
}

func (a *App) setup() {
	var console io.Writer = io.Discard
	if a.verbose {
		console = a.errOut
	}
	a.log = logger.New(logger.Options{
		Env:          a.settings.Env,
		ConsoleLevel: "debug",
		FileLevel:    "debug",
		File:         a.settings.LogFile,
		App:          "authctl",
		Console:      console,
	})

	router := apperr.NewRouter(a.terminal(apperr.CodeGeneric))
	for _, code := range apperr.Codes() {
		if code != apperr.CodeGeneric {
			router.Route(code, a.terminal(""))
		}
	}
	a.errors = apperr.NewHandler(router, apperr.WithLogger(a.log))

	hc := httpclient.New(
		httpclient.WithBaseURL(a.settings.BaseURL),
		httpclient.WithTimeout(a.settings.Timeout),
		httpclient.WithLogger(a.log),
		httpclient.WithRetries(2, 200*time.Millisecond),
		httpclient.WithMaxBackoff(2*time.Second),
		httpclient.WithUserAgent("authctl"),
	)
	a.client = authclient.New(hc, authclient.WithLocale(a.settings.Locale))
}

// run is the inner boundary every command goes through.
func (a *App) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	err := a.errors.Handle(cmd.Context(), fn, apperr.HandleOptions{Rethrow: true})
	a.handled = err != nil
	return err
}

// terminal prints the message for the notified code, or for force when set,
// followed by the field details.
func (a *App) terminal(force apperr.Code) apperr.Notifier {
	return apperr.NotifierFunc(func(ctx context.Context, code apperr.Code) error {
		if force != "" {
			code = force
		}
		if _, err := fmt.Fprintf(a.errOut, "error: %s\n", a.cat.Message(a.settings.Locale, code)); err != nil {
			return err
		}
		e, ok := apperr.FromContext(ctx)
		if !ok || force != "" {
			return nil
		}
		d, _ := e.Data().(*apperr.ValidationDetail)
		if d == nil {
			d = apperr.ExtractDetail(e)
		}
		if d == nil {
			return nil
		}
		for _, f := range d.Fields {
			msg := f.Message
			if msg == "" {
				msg = "expected " + f.Expected
			}
			if _, err := fmt.Fprintf(a.errOut, "  %s: %s\n", f.Property, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// Main runs authctl with args and returns the process exit status. It is the
// outer boundary: failures were already shown to the user, so only the
// status is derived from them. in feeds --password-stdin.
func Main(ctx context.Context, s Settings, args []string, in io.Reader, out, errOut io.Writer) (status int) {
	cat, err := i18n.New(s.Locale)
	if err != nil {
		fmt.Fprintln(errOut, "authctl:", err)
		return 2
	}
	a := NewApp(s, cat, out, errOut)
	defer func() {
		if r := recover(); r != nil {
			status = 1
		}
		if a.log != nil {
			_ = logger.Close(a.log)
		}
	}()

	root := a.Command()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		if !a.handled {
			// flag or usage errors never reached a command
			fmt.Fprintln(errOut, "authctl:", err)
		}
		return 1
	}
	return 0
}
