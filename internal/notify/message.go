package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/crashify360/totalloss/internal/model"
	"github.com/crashify360/totalloss/internal/report"
	"github.com/crashify360/totalloss/internal/validate"
)

// Vehicle describes the vehicle offered for salvage.
type Vehicle struct {
	VIN      string `json:"vin"`
	Year     int    `json:"year,omitempty"`
	Make     string `json:"make,omitempty"`
	Model    string `json:"model,omitempty"`
	Variant  string `json:"variant,omitempty"`
	Odometer int    `json:"odometer,omitempty"`
	Location string `json:"location,omitempty"`
}

// Title returns "2020 Toyota Camry", skipping unknown parts.
func (v Vehicle) Title() string {
	var parts []string
	if v.Year > 0 {
		parts = append(parts, fmt.Sprint(v.Year))
	}
	for _, s := range []string{v.Make, v.Model} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Request is one salvage request to send.
type Request struct {
	To             []string        `json:"to"`
	Cc             []string        `json:"cc,omitempty"`
	Vehicle        Vehicle         `json:"vehicle"`
	PolicyValue    decimal.Decimal `json:"policy_value"`
	LossType       model.LossType  `json:"loss_type"`
	AdditionalInfo string          `json:"additional_info,omitempty"`
	RequestedAt    time.Time       `json:"requested_at"`
}

// Message is a rendered email ready to send.
type Message struct {
	From     string
	To       []string
	Cc       []string
	Subject  string
	Template string
	Date     time.Time
	HTML     string
	Text     string
}

// Recipients returns every envelope recipient.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc))
	out = append(out, m.To...)
	return append(out, m.Cc...)
}

type view struct {
	Template    string
	Ask         string
	Vehicle     Vehicle
	PolicyValue string
	LossType    string
	RequestedAt string
	Additional  string
}

var funcs = map[string]any{
	"na": func(v any) string {
		switch x := v.(type) {
		case string:
			if x == "" {
				return "N/A"
			}
			return x
		case int:
			if x == 0 {
				return "N/A"
			}
			return fmt.Sprint(x)
		}
		return fmt.Sprint(v)
	},
	"tba": func(s string) string {
		if s == "" {
			return "TBA"
		}
		return s
	},
}

var htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.header { background-color: #FF4B4B; color: white; padding: 20px; text-align: center; }
.content { padding: 20px; }
.info-table { width: 100%; border-collapse: collapse; margin: 20px 0; }
.info-table th { background-color: #f4f4f4; text-align: left; padding: 10px; border: 1px solid #ddd; }
.info-table td { padding: 10px; border: 1px solid #ddd; }
.tender-type { background-color: #fff3cd; padding: 15px; border-left: 4px solid #ffc107; margin: 20px 0; }
.footer { background-color: #f4f4f4; padding: 15px; text-align: center; font-size: 0.9em; color: #666; }
</style>
</head>
<body>
<div class="header"><h1>Crashify360 Salvage Request</h1></div>
<div class="content">
<p>Dear Salvage Partner,</p>
<p>We are requesting a salvage valuation for the following vehicle that has been declared a total loss.</p>
<div class="tender-type"><strong>Tender Type:</strong> {{.Template}}</div>
<p>{{.Ask}}</p>
<table class="info-table">
<tr><th>Field</th><th>Value</th></tr>
<tr><td><strong>VIN</strong></td><td>{{.Vehicle.VIN}}</td></tr>
<tr><td><strong>Year</strong></td><td>{{na .Vehicle.Year}}</td></tr>
<tr><td><strong>Make</strong></td><td>{{na .Vehicle.Make}}</td></tr>
<tr><td><strong>Model</strong></td><td>{{na .Vehicle.Model}}</td></tr>
<tr><td><strong>Variant</strong></td><td>{{na .Vehicle.Variant}}</td></tr>
<tr><td><strong>Odometer</strong></td><td>{{na .Vehicle.Odometer}} km</td></tr>
<tr><td><strong>Policy Value</strong></td><td>{{.PolicyValue}}</td></tr>
<tr><td><strong>Location</strong></td><td>{{tba .Vehicle.Location}}</td></tr>
</table>
<h3>Request Details</h3>
<p><strong>Loss Type:</strong> {{.LossType}}</p>
<p><strong>Date Requested:</strong> {{.RequestedAt}}</p>
{{if .Additional}}<p><strong>Additional Information:</strong><br>{{.Additional}}</p>{{end}}
<h3>Required Information</h3>
<ul>
<li>Salvage value offer</li>
<li>Collection arrangements</li>
<li>Payment terms</li>
<li>Any conditions or exclusions</li>
</ul>
<h3>Response Required</h3>
<p>Please respond within <strong>48 hours</strong> with your offer.</p>
<p>Best regards,<br><strong>Crashify360 Team</strong></p>
</div>
<div class="footer">
<p>This is an automated message from the Crashify360 Total Loss Evaluation System</p>
<p>For queries, please contact your claims handler</p>
</div>
</body>
</html>
`))

var textTmpl = texttemplate.Must(texttemplate.New("text").Funcs(funcs).Parse(`Dear Salvage Partner,

We are requesting a salvage valuation for the following vehicle that has been declared a total loss.

Tender Type: {{.Template}}
{{.Ask}}

VIN:          {{.Vehicle.VIN}}
Year:         {{na .Vehicle.Year}}
Make:         {{na .Vehicle.Make}}
Model:        {{na .Vehicle.Model}}
Variant:      {{na .Vehicle.Variant}}
Odometer:     {{na .Vehicle.Odometer}} km
Policy Value: {{.PolicyValue}}
Location:     {{tba .Vehicle.Location}}

Loss Type:      {{.LossType}}
Date Requested: {{.RequestedAt}}
{{if .Additional}}
Additional Information:
{{.Additional}}
{{end}}
Please include your salvage value offer, collection arrangements, payment
terms and any conditions or exclusions. Please respond within 48 hours.

Best regards,
Crashify360 Team
`))

// Render builds the message for req using the loss type's template.
func Render(req Request, from string) (*Message, error) {
	if len(req.To) == 0 {
		return nil, eris.New("notify: at least one recipient is required")
	}
	for _, addr := range append(append([]string{}, req.To...), req.Cc...) {
		if !validate.ValidEmail(addr) {
			return nil, eris.Errorf("notify: invalid recipient %q", addr)
		}
	}
	if req.Vehicle.VIN == "" {
		return nil, eris.New("notify: vehicle VIN is required")
	}
	if !req.PolicyValue.IsPositive() {
		return nil, eris.Errorf("notify: policy value must be positive, got %s", req.PolicyValue)
	}
	tmpl, err := TemplateFor(req.LossType)
	if err != nil {
		return nil, err
	}

	at := req.RequestedAt
	if at.IsZero() {
		at = time.Now()
	}
	v := view{
		Template:    tmpl.Name,
		Ask:         tmpl.Ask,
		Vehicle:     req.Vehicle,
		PolicyValue: report.Money(req.PolicyValue),
		LossType:    req.LossType.DisplayName(),
		RequestedAt: at.Format("2006-01-02 15:04:05"),
		Additional:  validate.Sanitize(req.AdditionalInfo, 2000),
	}

	var html, text bytes.Buffer
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return nil, eris.Wrap(err, "notify: render html")
	}
	if err := textTmpl.Execute(&text, v); err != nil {
		return nil, eris.Wrap(err, "notify: render text")
	}

	subject := "Salvage Request - "
	if title := req.Vehicle.Title(); title != "" {
		subject += title + " - "
	}
	subject += "VIN: " + req.Vehicle.VIN

	return &Message{
		From:     from,
		To:       req.To,
		Cc:       req.Cc,
		Subject:  subject,
		Template: tmpl.Name,
		Date:     at,
		HTML:     html.String(),
		Text:     text.String(),
	}, nil
}

// Bytes encodes m as a multipart/alternative MIME message.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "From: %s\r\n", m.From)
	fmt.Fprintf(&hdr, "To: %s\r\n", strings.Join(m.To, ", "))
	if len(m.Cc) > 0 {
		fmt.Fprintf(&hdr, "Cc: %s\r\n", strings.Join(m.Cc, ", "))
	}
	fmt.Fprintf(&hdr, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&hdr, "Date: %s\r\n", m.Date.Format(time.RFC1123Z))
	hdr.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&hdr, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	for _, part := range []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", m.Text},
		{"text/html; charset=utf-8", m.HTML},
	} {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", part.ctype)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, eris.Wrap(err, "notify: create part")
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, eris.Wrap(err, "notify: write part")
		}
		if err := qp.Close(); err != nil {
			return nil, eris.Wrap(err, "notify: close part")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "notify: close multipart")
	}

	return append(hdr.Bytes(), buf.Bytes()...), nil
}
