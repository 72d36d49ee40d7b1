package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseQuestionsDutchFormat(t *testing.T) {
	raw := []byte(`[
		{"type": "meerkeuze", "vraag": "Hoofdstad?", "opties": ["Amsterdam", "Utrecht"], "correct": 0},
		{"type": "ja/nee", "vraag": "Regent het?"},
		{"vraag": ""}
	]`)
	questions, err := ParseQuestions(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	if questions[0].Type != QuestionMultipleChoice || questions[0].Text != "Hoofdstad?" || len(questions[0].Options) != 2 {
		t.Fatalf("unexpected first question %+v", questions[0])
	}
	if questions[0].CorrectOptionIndex == nil || *questions[0].CorrectOptionIndex != 0 {
		t.Fatalf("expected correct option 0, got %v", questions[0].CorrectOptionIndex)
	}
	if questions[1].Type != QuestionYesNo || questions[1].CorrectOptionIndex != nil {
		t.Fatalf("unexpected yes/no question %+v", questions[1])
	}
	if questions[2].Type != QuestionOpenText || questions[2].Text != "Question 3" || questions[2].Number != 3 {
		t.Fatalf("unexpected defaulted question %+v", questions[2])
	}
}

func TestParseQuestionnaireObject(t *testing.T) {
	title, questions, err := ParseQuestionnaire([]byte(`{"title": "Geography", "questions": [{"type": "multiple-choice", "text": "Capital of France?", "options": ["Paris", "Berlin"], "correctOptionIndex": 0}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if title != "Geography" || len(questions) != 1 || questions[0].Number != 1 {
		t.Fatalf("unexpected questionnaire %q %+v", title, questions)
	}
}

func TestNormalizeQuestionsCanonicalizesTypes(t *testing.T) {
	questions := NormalizeQuestions([]Question{
		{Type: "meerkeuze", Text: "Hoofdstad?", Options: []string{"Amsterdam", "Utrecht"}, CorrectOptionIndex: intPtr(1)},
		{Type: "bogus", Text: "Why?"},
		{Type: QuestionMultipleChoice, Text: "Pick", Options: []string{"a", "b"}, CorrectOptionIndex: intPtr(2)},
		{Type: QuestionMultipleChoice, Text: "Pick", Options: []string{"a"}, CorrectOptionIndex: intPtr(-1)},
	})
	if questions[0].Type != QuestionMultipleChoice || questions[0].CorrectOptionIndex == nil || *questions[0].CorrectOptionIndex != 1 {
		t.Fatalf("unexpected first question %+v", questions[0])
	}
	if questions[1].Type != QuestionOpenText {
		t.Fatalf("expected unknown type to become open text, got %q", questions[1].Type)
	}
	if questions[2].CorrectOptionIndex != nil || questions[3].CorrectOptionIndex != nil {
		t.Fatalf("expected out-of-range correct options dropped, got %+v %+v", questions[2], questions[3])
	}
}

func intPtr(v int) *int { return &v }

func TestParseQuestionsRejectsMalformedJSON(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"title": "x"}`, `"a string"`} {
		if _, err := ParseQuestions([]byte(raw)); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", raw, err)
		}
	}
}

func TestValidateAnswer(t *testing.T) {
	correct := 0
	mc := Question{Number: 1, Type: QuestionMultipleChoice, Options: []string{"Paris", "Berlin"}, CorrectOptionIndex: &correct}
	yn := Question{Number: 2, Type: QuestionYesNo}
	open := Question{Number: 3, Type: QuestionOpenText}

	if _, err := ValidateAnswer(mc, OptionAnswer(1)); err != nil {
		t.Fatalf("valid option rejected: %v", err)
	}
	if _, err := ValidateAnswer(mc, OptionAnswer(2)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected out-of-range option to fail, got %v", err)
	}
	if _, err := ValidateAnswer(mc, TextAnswer("Paris")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected text for multiple choice to fail, got %v", err)
	}
	v, err := ValidateAnswer(yn, TextAnswer(" Ja "))
	if err != nil || v.Text() != AnswerYes {
		t.Fatalf("expected ja to normalize to yes, got %v %v", v, err)
	}
	if _, err := ValidateAnswer(yn, TextAnswer("maybe")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected maybe to fail, got %v", err)
	}
	if _, err := ValidateAnswer(open, TextAnswer("   ")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected blank answer to fail, got %v", err)
	}
	v, err = ValidateAnswer(open, TextAnswer("  because  "))
	if err != nil || v.Text() != "because" {
		t.Fatalf("expected trimmed text, got %q %v", v.Text(), err)
	}
}

func TestAnswerValueJSON(t *testing.T) {
	var a Answer
	if err := json.Unmarshal([]byte(`{"questionIndex": 1, "value": 2}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if idx, ok := a.Value.Option(); !ok || idx != 2 {
		t.Fatalf("expected option 2, got %+v", a.Value)
	}
	if err := json.Unmarshal([]byte(`{"value": "Paris"}`), &a); err != nil {
		t.Fatalf("unmarshal text: %v", err)
	}
	if _, ok := a.Value.Option(); ok || a.Value.Text() != "Paris" {
		t.Fatalf("expected text answer, got %+v", a.Value)
	}
	out, err := json.Marshal(OptionAnswer(3))
	if err != nil || string(out) != "3" {
		t.Fatalf("expected 3, got %s %v", out, err)
	}
	if err := json.Unmarshal([]byte(`{"value": 1.5}`), &a); err == nil {
		t.Fatalf("expected fractional index to fail")
	}
}
