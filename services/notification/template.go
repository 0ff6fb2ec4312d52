package notification

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template is a named pair of title/message templates. Rendering is a pure
// function of (template, variables); no I/O beyond the registry lookup.
type Template struct {
	ID      string
	title   *template.Template
	message *template.Template
}

// TemplateEngine registers and renders notification templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates an engine preloaded with the built-in academic
// templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for id, t := range builtinTemplates {
		if err := e.Register(id, t[0], t[1]); err != nil {
			// Built-ins are compile-time constants; a parse failure here is a
			// programming error.
			panic(fmt.Sprintf("invalid built-in template %s: %v", id, err))
		}
	}
	return e
}

var builtinTemplates = map[string][2]string{
	"assignment_due_soon": {
		"Assignment due {{.window}}: {{.assignmentTitle}}",
		"Reminder: the assignment \"{{.assignmentTitle}}\" is due {{.window}}, on {{.dueDate}}. Submit before the deadline.",
	},
	"grade_posted": {
		"Grade posted for {{.courseName}}",
		"Your grade for \"{{.itemTitle}}\" in {{.courseName}} has been posted: {{.grade}}.",
	},
	"attendance_marked": {
		"Attendance recorded for {{.courseName}}",
		"Your attendance on {{.date}} for {{.courseName}} was marked as {{.status}}.",
	},
	"notice_posted": {
		"New notice: {{.noticeTitle}}",
		"{{.noticeBody}}",
	},
	"exam_reminder": {
		"Upcoming exam: {{.examTitle}}",
		"The exam \"{{.examTitle}}\" is scheduled for {{.examDate}} at {{.venue}}. Arrive 15 minutes early.",
	},
}

// Register parses and stores a template under the given id. Existing ids are
// replaced.
func (e *TemplateEngine) Register(id, titleText, messageText string) error {
	title, err := template.New(id + ":title").Option("missingkey=error").Parse(titleText)
	if err != nil {
		return NewTemplateError(fmt.Sprintf("parse title of %q: %v", id, err))
	}
	message, err := template.New(id + ":message").Option("missingkey=error").Parse(messageText)
	if err != nil {
		return NewTemplateError(fmt.Sprintf("parse message of %q: %v", id, err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[id] = &Template{ID: id, title: title, message: message}
	return nil
}

// Render produces (title, message) from a registered template and a variable
// map. Deterministic: identical inputs yield identical output. An unknown id
// or a missing required variable yields a TemplateError.
func (e *TemplateEngine) Render(id string, variables map[string]string) (string, string, error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", NewTemplateError(fmt.Sprintf("unknown template %q", id))
	}

	var title strings.Builder
	if err := t.title.Execute(&title, variables); err != nil {
		return "", "", NewTemplateError(fmt.Sprintf("render title of %q: %v", id, err))
	}
	var message strings.Builder
	if err := t.message.Execute(&message, variables); err != nil {
		return "", "", NewTemplateError(fmt.Sprintf("render message of %q: %v", id, err))
	}
	return title.String(), message.String(), nil
}
