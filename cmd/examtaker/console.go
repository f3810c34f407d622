package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-practice/internal/model"
	"github.com/stemsi/exstem-practice/internal/report"
	"github.com/stemsi/exstem-practice/internal/session"
)

type commandKind int

const (
	cmdUnknown commandKind = iota
	cmdSelect
	cmdNext
	cmdPrev
	cmdGoto
	cmdSave
	cmdSubmit
	cmdCancel
	cmdShow
	cmdQuit
	cmdHelp
)

type command struct {
	kind commandKind
	arg  int
}

// parseCommand reads one console line. Numbers are 1-based for the user and
// converted to 0-based indexes here.
func parseCommand(line string) command {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{kind: cmdShow}
	}

	if n, err := strconv.Atoi(fields[0]); err == nil && len(fields) == 1 {
		if n < 1 {
			return command{kind: cmdUnknown}
		}
		return command{kind: cmdSelect, arg: n - 1}
	}

	switch fields[0] {
	case "n", "next":
		return command{kind: cmdNext}
	case "p", "prev":
		return command{kind: cmdPrev}
	case "g", "goto":
		if len(fields) != 2 {
			return command{kind: cmdUnknown}
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return command{kind: cmdUnknown}
		}
		return command{kind: cmdGoto, arg: n - 1}
	case "s", "save":
		return command{kind: cmdSave}
	case "submit":
		return command{kind: cmdSubmit}
	case "cancel":
		return command{kind: cmdCancel}
	case "q", "quit", "exit":
		return command{kind: cmdQuit}
	case "h", "help", "?":
		return command{kind: cmdHelp}
	}
	return command{kind: cmdUnknown}
}

const helpText = `Commands:
  <n>          pick option n (toggles on multiple-choice questions)
  n / p        next / previous question
  g <n>        go to question n
  s            save progress
  submit       submit (asks for confirmation first)
  cancel       cancel a pending submit
  q            quit without submitting
`

// renderQuestion prints the question under the cursor with the clock.
func renderQuestion(w io.Writer, snap session.Snapshot) {
	q, ok := snap.Current()
	if !ok {
		fmt.Fprintln(w, "No questions.")
		return
	}
	progress := report.Progress(snap.Answers)
	band := report.Band(snap.RemainingSeconds)

	fmt.Fprintf(w, "\n[%s %s] Question %d/%d  answered %d/%d\n",
		report.FormatClock(snap.RemainingSeconds), strings.ToUpper(string(band)),
		snap.CurrentIndex+1, len(snap.Questions), progress.Answered, progress.Total)

	kind := "choose one"
	if q.QuestionType == model.QuestionTypeMultipleChoice {
		kind = "choose all that apply"
	}
	fmt.Fprintf(w, "%s (%s, %d mark(s))\n", q.QuestionText, kind, q.Marks)

	var picked model.AnswerValue
	if v := snap.Answers[snap.CurrentIndex].Value; v != nil {
		picked = *v
	}
	for i, opt := range q.Options {
		mark := " "
		if picked.Contains(i) {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %d. %s\n", mark, i+1, opt)
	}
	if snap.ConfirmArmed {
		fmt.Fprintf(w, "Submit %d answered of %d questions? Type submit again to confirm or cancel.\n",
			progress.Answered, progress.Total)
	}
	if snap.LastError != "" {
		fmt.Fprintf(w, "! %s\n", snap.LastError)
	}
}

// renderSummary prints the result screen.
func renderSummary(w io.Writer, attemptID model.ID, res model.ResultAnalysis) {
	s := report.Summarize(res)

	fmt.Fprintf(w, "\nScore %s (%s%%)\n", s.ScoreLine, strconv.FormatFloat(s.Percentage, 'f', -1, 64))
	if s.Passed {
		fmt.Fprintf(w, "Passed, mastery %s\n", s.Mastery)
	} else if s.PassingGap != nil {
		fmt.Fprintf(w, "Not passed, %s percentage points short\n", strconv.FormatFloat(*s.PassingGap, 'f', 1, 64))
	} else {
		fmt.Fprintln(w, "Not passed")
	}
	fmt.Fprintf(w, "Correct %d, incorrect %d, time taken %s min, attempt %s\n",
		s.Correct, s.Incorrect, strconv.FormatFloat(s.DurationTaken, 'f', -1, 64), attemptID)

	for _, item := range s.Review {
		verdict := "wrong"
		if item.IsCorrect {
			verdict = "correct"
		}
		fmt.Fprintf(w, "\n%d. %s [%s]\n", item.Number, item.QuestionText, verdict)
		for _, opt := range item.Options {
			fmt.Fprintf(w, "   %s %s\n", optionSymbol(opt), opt.Text)
		}
		if item.Explanation != "" {
			fmt.Fprintf(w, "   %s\n", item.Explanation)
		}
	}
}

func optionSymbol(o report.OptionView) string {
	switch {
	case o.Mark == report.MarkCorrect && o.Picked:
		return "[+]"
	case o.Mark == report.MarkCorrect:
		return "[*]"
	case o.Mark == report.MarkWrongPick:
		return "[-]"
	default:
		return "[ ]"
	}
}
