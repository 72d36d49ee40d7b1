package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// rawQuestion accepts both the canonical field names and the Dutch-labelled format used
// by the canned questionnaire files (vraag/opties/correct, meerkeuze/open/ja/nee).
type rawQuestion struct {
	Type               string   `json:"type"`
	Text               string   `json:"text"`
	Vraag              string   `json:"vraag"`
	Options            []string `json:"options"`
	Opties             []string `json:"opties"`
	CorrectOptionIndex *int     `json:"correctOptionIndex"`
	Correct            *int     `json:"correct"`
}

type rawQuestionnaire struct {
	Title     string        `json:"title"`
	Questions []rawQuestion `json:"questions"`
}

// ParseQuestionType maps the accepted spellings onto a QuestionType. Unknown or empty
// spellings become open-text.
func ParseQuestionType(raw string) QuestionType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "multiple-choice", "multiple_choice", "multiplechoice", "mc", "meerkeuze":
		return QuestionMultipleChoice
	case "yes-no", "yes/no", "yesno", "yes_no", "ja/nee", "janee":
		return QuestionYesNo
	default:
		return QuestionOpenText
	}
}

// ParseQuestions decodes a JSON question list, either a bare array or an object with a
// "questions" array, and normalizes it.
func ParseQuestions(data []byte) ([]Question, error) {
	_, questions, err := ParseQuestionnaire(data)
	return questions, err
}

// ParseQuestionnaire decodes a questionnaire document and returns its title (may be
// empty) and normalized questions.
func ParseQuestionnaire(data []byte) (string, []Question, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: question list is empty", ErrValidation)
	}

	var raws []rawQuestion
	var title string
	if data[0] == '{' {
		var doc rawQuestionnaire
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", nil, fmt.Errorf("%w: questions: %v", ErrValidation, err)
		}
		if doc.Questions == nil {
			return "", nil, fmt.Errorf("%w: questions must be an array", ErrValidation)
		}
		title, raws = doc.Title, doc.Questions
	} else {
		if err := json.Unmarshal(data, &raws); err != nil {
			return "", nil, fmt.Errorf("%w: questions must be an array: %v", ErrValidation, err)
		}
	}

	questions := make([]Question, 0, len(raws))
	for _, r := range raws {
		q := Question{
			Type:               ParseQuestionType(r.Type),
			Text:               firstNonEmpty(r.Text, r.Vraag),
			Options:            r.Options,
			CorrectOptionIndex: r.CorrectOptionIndex,
		}
		if q.Options == nil {
			q.Options = r.Opties
		}
		if q.CorrectOptionIndex == nil {
			q.CorrectOptionIndex = r.Correct
		}
		questions = append(questions, q)
	}
	return title, NormalizeQuestions(questions), nil
}

// NormalizeQuestions renumbers questions by position and fills defaults. Types go
// through ParseQuestionType and a correct option outside Options is dropped.
func NormalizeQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		q.Number = i + 1
		q.Type = ParseQuestionType(string(q.Type))
		if strings.TrimSpace(q.Text) == "" {
			q.Text = fmt.Sprintf("Question %d", i+1)
		}
		if q.Options == nil {
			q.Options = []string{}
		}
		if q.Type != QuestionMultipleChoice {
			q.CorrectOptionIndex = nil
		}
		if c := q.CorrectOptionIndex; c != nil && (*c < 0 || *c >= len(q.Options)) {
			q.CorrectOptionIndex = nil
		}
		out[i] = q
	}
	return out
}

// DefaultQuestions is used when the submitted question JSON cannot be parsed.
func DefaultQuestions() []Question {
	correct := 0
	return NormalizeQuestions([]Question{{
		Type:               QuestionMultipleChoice,
		Text:               "What is the capital of the Netherlands?",
		Options:            []string{"Amsterdam", "Rotterdam", "The Hague", "Utrecht"},
		CorrectOptionIndex: &correct,
	}})
}

// ValidateAnswer checks a value against the question type and returns it normalized.
func ValidateAnswer(q Question, v AnswerValue) (AnswerValue, error) {
	if v.IsEmpty() {
		return AnswerValue{}, fmt.Errorf("%w: select or type an answer", ErrValidation)
	}
	switch q.Type {
	case QuestionMultipleChoice:
		idx, ok := v.Option()
		if !ok {
			return AnswerValue{}, fmt.Errorf("%w: multiple-choice answers must select an option", ErrValidation)
		}
		if idx < 0 || idx >= len(q.Options) {
			return AnswerValue{}, fmt.Errorf("%w: option %d does not exist", ErrValidation, idx)
		}
		return v, nil
	case QuestionYesNo:
		switch strings.ToLower(strings.TrimSpace(v.Text())) {
		case AnswerYes, "ja":
			return TextAnswer(AnswerYes), nil
		case AnswerNo, "nee":
			return TextAnswer(AnswerNo), nil
		}
		return AnswerValue{}, fmt.Errorf("%w: answer must be %q or %q", ErrValidation, AnswerYes, AnswerNo)
	default:
		if _, ok := v.Option(); ok {
			return TextAnswer(v.String()), nil
		}
		return TextAnswer(strings.TrimSpace(v.Text())), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
