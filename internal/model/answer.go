package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"time"
)

// AnswerValue is a recorded choice: one option index for SINGLE and
// TRUE_FALSE questions, a set of option indices for MCQ questions.
// The zero value is an empty multiple-choice set.
type AnswerValue struct {
	options  []int
	multiple bool
}

// SingleAnswer returns the value for a one-option question.
func SingleAnswer(option int) AnswerValue {
	return AnswerValue{options: []int{option}}
}

// MultiAnswer returns a deduplicated option set.
func MultiAnswer(options ...int) AnswerValue {
	set := append([]int(nil), options...)
	slices.Sort(set)
	return AnswerValue{options: slices.Compact(set), multiple: true}
}

// Multiple reports whether the value is an option set.
func (v AnswerValue) Multiple() bool { return v.multiple }

// Options returns the selected option indices in ascending order.
func (v AnswerValue) Options() []int { return append([]int(nil), v.options...) }

// Len returns the number of selected options.
func (v AnswerValue) Len() int { return len(v.options) }

// Contains reports whether option is selected.
func (v AnswerValue) Contains(option int) bool {
	_, found := slices.BinarySearch(v.options, option)
	return found
}

// Toggle flips membership of option in a multiple-choice set.
func (v AnswerValue) Toggle(option int) AnswerValue {
	idx, found := slices.BinarySearch(v.options, option)
	next := append([]int(nil), v.options...)
	if found {
		next = slices.Delete(next, idx, idx+1)
	} else {
		next = slices.Insert(next, idx, option)
	}
	return AnswerValue{options: next, multiple: true}
}

// Equal compares two values by shape and selection.
func (v AnswerValue) Equal(o AnswerValue) bool {
	return v.multiple == o.multiple && slices.Equal(v.options, o.options)
}

// MarshalJSON encodes a single choice as a number and a set as a sorted array.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if !v.multiple {
		if len(v.options) != 1 {
			return nil, errors.New("single answer must hold exactly one option")
		}
		return json.Marshal(v.options[0])
	}
	if v.options == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.options)
}

// UnmarshalJSON accepts a number (single) or an array (set).
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var opts []int
		if err := json.Unmarshal(data, &opts); err != nil {
			return err
		}
		*v = MultiAnswer(opts...)
		return nil
	}
	var opt int
	if err := json.Unmarshal(data, &opt); err != nil {
		return err
	}
	*v = SingleAnswer(opt)
	return nil
}

// Answer is one answer slot, index-aligned with the attempt's questions.
// A nil Value means the question is unanswered.
type Answer struct {
	Value      *AnswerValue `json:"answer"`
	RecordedAt *time.Time   `json:"timestamp"`
}

// Answered reports whether the slot holds a value.
func (a Answer) Answered() bool { return a.Value != nil }

// Clone returns a deep copy of the slot.
func (a Answer) Clone() Answer {
	out := Answer{}
	if a.Value != nil {
		v := AnswerValue{options: a.Value.Options(), multiple: a.Value.multiple}
		out.Value = &v
	}
	if a.RecordedAt != nil {
		ts := *a.RecordedAt
		out.RecordedAt = &ts
	}
	return out
}

// CloneAnswers deep-copies a slice of answer slots.
func CloneAnswers(in []Answer) []Answer {
	out := make([]Answer, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
