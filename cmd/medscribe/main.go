// Command medscribe turns medical consultation audio into structured SOAP
// notes. Subcommands cover the blocking pipeline, the single stages, the
// store-backed tracked path, and the worker pool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/medscribe/medscribe-go/config"
	"github.com/medscribe/medscribe-go/internal/adapters/runner"
	"github.com/medscribe/medscribe-go/internal/bootstrap"
	"github.com/medscribe/medscribe-go/internal/domain/model"
	"github.com/medscribe/medscribe-go/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

func main() {
	cfg, cfgErr := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(cfg.IsDev)
	if cfgErr != nil {
		logger.Error("load config", "error", cfgErr)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg}
	if err := cmd.run(cmdCtx, os.Args[2:]); err != nil {
		logger.Error("command failed", "command", cmdName, "error", err)
		os.Exit(1)
	}
}

func commands() map[string]command {
	return map[string]command{
		"process": {
			name:        "process",
			description: "Transcribe an audio file and generate a SOAP note",
			run:         runProcess,
		},
		"transcribe": {
			name:        "transcribe",
			description: "Transcribe an audio file and print the transcript",
			run:         runTranscribe,
		},
		"generate": {
			name:        "generate",
			description: "Generate a SOAP note from a transcript file",
			run:         runGenerate,
		},
		"watch": {
			name:        "watch",
			description: "Stream progress updates for a job",
			run:         runWatch,
		},
		"workers": {
			name:        "workers",
			description: "Run the job worker pool",
			run:         runWorkers,
		},
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: medscribe <command> [arguments]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, cmds[name].description)
	}
}

func runProcess(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	track := fs.Bool("track", false, "execute as a tracked job and stream its progress")
	asJSON := fs.Bool("json", false, "print the full processing result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: medscribe process [-track] [-json] <audio-file>")
	}
	audioPath := fs.Arg(0)

	app, err := bootstrap.NewApp(cmdCtx.Ctx, cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if *track {
		return processTracked(cmdCtx.Ctx, app, audioPath)
	}

	result, err := app.Pipeline.Process(cmdCtx.Ctx, audioPath, printProgress)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(result)
	}
	fmt.Println()
	fmt.Println(result.Note.Formatted())
	if result.Transcription != nil {
		fmt.Printf("\n[Duration: %.1fs | Language: %s | Processed in %.1fs]\n",
			result.Transcription.DurationSeconds,
			result.Transcription.Language,
			result.ProcessingTimeSeconds)
	}
	return nil
}

// processTracked runs the job through the store-backed path: submit, execute
// on the worker pool, and stream the watcher until the job is terminal.
func processTracked(ctx context.Context, app *bootstrap.App, audioPath string) error {
	jobID, err := app.Jobs.SubmitProcess(ctx, audioPath, nil)
	if err != nil {
		return err
	}
	fmt.Printf("job %s submitted\n", jobID)

	events, err := app.Watcher.Watch(ctx, jobID)
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runnerDone := make(chan error, 1)
	go func() { runnerDone <- app.Runner.Run(runCtx) }()

	if err := app.Runner.Enqueue(runner.Task{
		JobID:     jobID,
		Type:      model.JobTypeFullPipeline,
		AudioPath: audioPath,
	}); err != nil {
		return err
	}

	final, err := streamEvents(events)
	cancelRun()
	<-runnerDone
	if err != nil {
		return err
	}
	return printFinalRecord(final)
}

func runTranscribe(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the transcription result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: medscribe transcribe [-json] <audio-file>")
	}

	app, err := bootstrap.NewApp(cmdCtx.Ctx, cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Pipeline.TranscribeOnly(cmdCtx.Ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(result)
	}
	fmt.Println(result.FormattedTranscript())
	fmt.Printf("\n[Duration: %.1fs | Language: %s]\n", result.DurationSeconds, result.Language)
	return nil
}

func runGenerate(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	language := fs.String("language", "en", "ISO 639-1 language of the transcript")
	asJSON := fs.Bool("json", false, "print the note as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: medscribe generate [-language en] [-json] <transcript-file>")
	}

	transcript, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	app, err := bootstrap.NewApp(cmdCtx.Ctx, cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	note, err := app.Pipeline.GenerateNoteOnly(cmdCtx.Ctx, string(transcript), *language)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(note)
	}
	fmt.Println(note.Formatted())
	return nil
}

func runWatch(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: medscribe watch <job-id>")
	}

	app, err := bootstrap.NewApp(cmdCtx.Ctx, cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	events, err := app.Watcher.Watch(cmdCtx.Ctx, args[0])
	if err != nil {
		return err
	}

	final, err := streamEvents(events)
	if err != nil {
		return err
	}
	return printFinalRecord(final)
}

func runWorkers(cmdCtx *commandContext, args []string) error {
	app, err := bootstrap.NewApp(cmdCtx.Ctx, cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Runner.Run(cmdCtx.Ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// streamEvents prints each progress update and returns the terminal record.
func streamEvents(events <-chan service.WatchEvent) (*model.JobRecord, error) {
	start := time.Now()
	lastProgress := -1

	var final *model.JobRecord
	for ev := range events {
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "update error: %v\n", ev.Err)
			continue
		}
		record := ev.Record
		if record.Progress != lastProgress {
			stage := string(record.Status)
			if record.CurrentStage != nil {
				stage = *record.CurrentStage
			}
			fmt.Printf("[%s] %3d%% | %-13s (%.1fs)\n",
				progressBar(record.Progress), record.Progress,
				stage, time.Since(start).Seconds())
			lastProgress = record.Progress
		}
		if record.Status.Terminal() {
			final = record
		}
	}
	if final == nil {
		return nil, fmt.Errorf("update stream ended before the job finished")
	}
	return final, nil
}

func printFinalRecord(record *model.JobRecord) error {
	switch record.Status {
	case model.JobStatusCompleted:
		fmt.Println("\njob completed")
		if len(record.Result) > 0 {
			var pretty map[string]any
			if err := json.Unmarshal(record.Result, &pretty); err == nil {
				return printJSON(pretty)
			}
		}
		return nil
	case model.JobStatusFailed:
		if record.Error != nil {
			fmt.Fprintf(os.Stderr, "\njob failed: %s\n", record.Error.Message)
			if record.Error.Hint != "" {
				fmt.Fprintf(os.Stderr, "hint: %s\n", record.Error.Hint)
			}
			return fmt.Errorf("job failed")
		}
		return fmt.Errorf("job failed")
	default:
		return fmt.Errorf("job ended in unexpected status %s", record.Status)
	}
}

func printProgress(status model.JobStatus, message string, percent int) {
	fmt.Printf("[%s] %3d%% | %s\n", progressBar(percent), percent, message)
}

const progressBarWidth = 40

func progressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := progressBarWidth * percent / 100
	return strings.Repeat("#", filled) + strings.Repeat("-", progressBarWidth-filled)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
