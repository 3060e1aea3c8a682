// Package notify sends salvage valuation requests to salvage partners.
package notify

import (
	"github.com/rotisserie/eris"

	"github.com/crashify360/totalloss/internal/model"
)

// Template names.
const (
	TemplateClient     = "Standard Salvage (Client)"
	TemplateThirdParty = "Firm Buy Tender (Third Party)"
)

// Template is the wording used for one loss type.
type Template struct {
	Name string
	// Ask is the sentence describing what the partner is asked to provide.
	Ask string
}

var templates = map[model.LossType]Template{
	model.LossTypeClient: {
		Name: TemplateClient,
		Ask:  "Please provide your salvage offer for the vehicle described below.",
	},
	model.LossTypeThirdParty: {
		Name: TemplateThirdParty,
		Ask:  "Please provide a firm buy tender for the vehicle described below. Tenders are binding once accepted.",
	},
}

// TemplateFor returns the template for lt.
func TemplateFor(lt model.LossType) (Template, error) {
	t, ok := templates[lt]
	if !ok {
		return Template{}, eris.Errorf("notify: no template for loss type %q", lt)
	}
	return t, nil
}
