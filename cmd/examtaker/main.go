// Command examtaker runs a practice exam in the terminal against the Exam
// Service, without going through the gateway.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-practice/internal/config"
	"github.com/stemsi/exstem-practice/internal/examapi"
	"github.com/stemsi/exstem-practice/internal/logger"
	"github.com/stemsi/exstem-practice/internal/report"
	"github.com/stemsi/exstem-practice/internal/scheduler"
	"github.com/stemsi/exstem-practice/internal/session"
	"golang.org/x/term"
)

func main() {
	// ─── Flags & Configuration ─────────────────────────────────────────
	cfg := config.Load()
	course := flag.String("course", "", "course slug to practise")
	apiURL := flag.String("api", cfg.ExamAPIURL, "Exam Service base URL")
	export := flag.String("export", "", "write the scored result to this .xlsx file")
	flag.Parse()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Component(logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr), "examtaker")

	reader := bufio.NewReader(os.Stdin)

	// ─── CLI Input ─────────────────────────────────────────────────────
	fmt.Println("=== ExStem Practice Exam ===")

	slug := strings.TrimSpace(*course)
	if slug == "" {
		fmt.Print("Enter Course Slug: ")
		slug, _ = reader.ReadString('\n')
		slug = strings.TrimSpace(slug)
	}
	if slug == "" {
		fmt.Println("Error: Course slug is required")
		os.Exit(1)
	}

	token := os.Getenv("EXAM_TOKEN")
	if token == "" {
		fmt.Print("Enter Access Token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading token")
			os.Exit(1)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		fmt.Println("Error: Access token is required")
		os.Exit(1)
	}

	// ─── Start Attempt ─────────────────────────────────────────────────
	finished := make(chan session.Snapshot, 1)
	ctrl := session.New(
		examapi.NewClient(*apiURL, cfg.ExamAPITimeout, log),
		session.WithScheduler(scheduler.NewReal()),
		session.WithLogger(log),
		session.WithListener(func(ev session.Event) {
			switch ev.Type {
			case session.EventTimedOut:
				fmt.Println("\nTime is up. Your answers are being submitted.")
			case session.EventCompleted, session.EventResult, session.EventResultUnavailable:
				select {
				case finished <- ev.Snapshot:
				default:
				}
			}
		}),
	)
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := ctrl.Start(ctx, slug, token)
	if err != nil {
		fmt.Printf("Error: could not start the exam: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Attempt %s started: %d questions, %s on the clock. Type h for help.\n",
		snap.AttemptID, len(snap.Questions), report.FormatClock(snap.RemainingSeconds))
	renderQuestion(os.Stdout, snap)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	// ─── Exam Loop ─────────────────────────────────────────────────────
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted; the attempt was not submitted.")
			return
		case final := <-finished:
			finish(ctrl, final, *export)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := execute(ctx, ctrl, os.Stdout, parseCommand(line)); done {
				return
			}
		}
	}
}

// execute runs one command and reports whether the loop should stop.
func execute(ctx context.Context, ctrl *session.Controller, w io.Writer, cmd command) bool {
	var err error
	switch cmd.kind {
	case cmdSelect:
		err = ctrl.SelectAnswer(ctrl.Snapshot().CurrentIndex, cmd.arg)
	case cmdNext:
		_, err = ctrl.Navigate(ctrl.Snapshot().CurrentIndex + 1)
	case cmdPrev:
		_, err = ctrl.Navigate(ctrl.Snapshot().CurrentIndex - 1)
	case cmdGoto:
		_, err = ctrl.Navigate(cmd.arg)
	case cmdSave:
		ctrl.SaveProgress()
		if ctrl.Snapshot().LastError == "" {
			fmt.Fprintln(w, "Progress saved.")
		}
	case cmdSubmit:
		var outcome session.SubmitOutcome
		outcome, err = ctrl.Submit(ctx)
		if err == nil && outcome != session.SubmitArmed {
			// The listener delivers the final snapshot.
			return false
		}
	case cmdCancel:
		err = ctrl.CancelSubmit()
	case cmdQuit:
		fmt.Fprintln(w, "Leaving without submitting.")
		return true
	case cmdHelp:
		fmt.Fprint(w, helpText)
		return false
	case cmdShow:
	default:
		fmt.Fprintln(w, "Unknown command, type h for help.")
		return false
	}

	if err != nil && !errors.Is(err, session.ErrSubmitFailed) {
		fmt.Fprintf(w, "! %v\n", err)
	}
	renderQuestion(w, ctrl.Snapshot())
	return false
}

func finish(ctrl *session.Controller, snap session.Snapshot, exportPath string) {
	if snap.Result == nil {
		snap = ctrl.Snapshot()
	}
	if snap.Result == nil {
		fmt.Printf("\nResults are unavailable right now. Contact support with attempt id %s.\n", snap.AttemptID)
		return
	}
	renderSummary(os.Stdout, snap.AttemptID, *snap.Result)

	if exportPath == "" {
		return
	}
	data, err := report.ExportWorkbook(snap.AttemptID.String(), *snap.Result)
	if err != nil {
		fmt.Printf("Error exporting result: %v\n", err)
		return
	}
	if err := os.WriteFile(exportPath, data, 0o644); err != nil {
		fmt.Printf("Error writing %s: %v\n", exportPath, err)
		return
	}
	fmt.Printf("Result written to %s\n", exportPath)
}
