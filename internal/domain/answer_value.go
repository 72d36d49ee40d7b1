package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Yes/no answers are stored as these literals.
const (
	AnswerYes = "yes"
	AnswerNo  = "no"
)

// AnswerValue is either a selected option index or a free-text/yes-no literal.
// It is stored as a JSON number or a JSON string respectively.
type AnswerValue struct {
	option *int
	text   string
}

// OptionAnswer selects a multiple-choice option by index.
func OptionAnswer(index int) AnswerValue {
	return AnswerValue{option: &index}
}

// TextAnswer is an open-text or yes/no answer.
func TextAnswer(text string) AnswerValue {
	return AnswerValue{text: text}
}

// Option returns the selected option index, if this is an option answer.
func (v AnswerValue) Option() (int, bool) {
	if v.option == nil {
		return 0, false
	}
	return *v.option, true
}

// Text returns the text of a text answer; empty for option answers.
func (v AnswerValue) Text() string {
	return v.text
}

// IsEmpty reports whether nothing was selected or typed.
func (v AnswerValue) IsEmpty() bool {
	return v.option == nil && strings.TrimSpace(v.text) == ""
}

// String is the raw formatting used for grouping answers in reports.
func (v AnswerValue) String() string {
	if v.option != nil {
		return strconv.Itoa(*v.option)
	}
	return v.text
}

// Equal compares two values by kind and content.
func (v AnswerValue) Equal(other AnswerValue) bool {
	a, aok := v.Option()
	b, bok := other.Option()
	if aok != bok {
		return false
	}
	if aok {
		return a == b
	}
	return v.text == other.text
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.option != nil {
		return []byte(strconv.Itoa(*v.option)), nil
	}
	return json.Marshal(v.text)
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = AnswerValue{}
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case float64:
		if val != math.Trunc(val) {
			return fmt.Errorf("answer option index must be an integer, got %v", val)
		}
		*v = OptionAnswer(int(val))
	case string:
		*v = TextAnswer(val)
	case bool:
		// yes/no answers written as booleans by older clients
		if val {
			*v = TextAnswer(AnswerYes)
		} else {
			*v = TextAnswer(AnswerNo)
		}
	default:
		return fmt.Errorf("unsupported answer value %s", string(data))
	}
	return nil
}
