package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"
)

// Шаблоны писем.
const (
	TemplateSchoolPending        = "school_pending"
	TemplateSchoolApproved       = "school_approved"
	TemplateSchoolRejected       = "school_rejected"
	TemplateRenewalApproved      = "renewal_approved"
	TemplateRenewalRejected      = "renewal_rejected"
	TemplateSubscriptionExpiring = "subscription_expiring"
	TemplateSubscriptionExpired  = "subscription_expired"
	TemplateParentWelcome        = "parent_welcome"
	TemplateStudentWelcome       = "student_welcome"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var templates = mustParseTemplates()

func mustParseTemplates() map[string]*template.Template {
	names := []string{
		TemplateSchoolPending, TemplateSchoolApproved, TemplateSchoolRejected,
		TemplateRenewalApproved, TemplateRenewalRejected,
		TemplateSubscriptionExpiring, TemplateSubscriptionExpired,
		TemplateParentWelcome, TemplateStudentWelcome,
	}
	res := make(map[string]*template.Template, len(names))
	for _, name := range names {
		res[name] = template.Must(template.New(name).
			Option("missingkey=error").
			ParseFS(templateFS, "templates/"+name+".gohtml"))
	}
	return res
}

// Render формирует тему и HTML-тело письма по шаблону name.
func Render(name string, data map[string]any) (subject, body string, err error) {
	t, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("notification.Render: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "subject", data); err != nil {
		return "", "", fmt.Errorf("notification.Render: %s subject: %w", name, err)
	}
	// тема письма не HTML: снимаем экранирование
	subject = strings.TrimSpace(html.UnescapeString(buf.String()))

	buf.Reset()
	if err := t.ExecuteTemplate(&buf, "body", data); err != nil {
		return "", "", fmt.Errorf("notification.Render: %s body: %w", name, err)
	}
	return subject, strings.TrimSpace(buf.String()), nil
}
