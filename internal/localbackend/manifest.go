package localbackend

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"contractgen/pkg/contractapi"
)

// Manifest is the document stored for each generated contract version. It
// records everything needed to render the final file offline.
type Manifest struct {
	TemplateID    string                   `json:"modeloId"`
	TemplateTitle string                   `json:"titulo"`
	Category      contractapi.Category     `json:"tipo"`
	AssetPath     string                   `json:"caminhoTemplate"`
	Hash          string                   `json:"hash"`
	Version       int                      `json:"versao"`
	GeneratedAt   time.Time                `json:"dataGeracao"`
	Parameters    map[string]string        `json:"parametros"`
	Placeholders  map[string]string        `json:"marcadores"`
	Data          contractapi.ResolvedData `json:"dados"`
}

const manifestContentType = "application/json"

func renderManifest(t contractapi.Template, inst contractapi.Instance, data contractapi.ResolvedData) ([]byte, error) {
	m := Manifest{
		TemplateID:    t.ID,
		TemplateTitle: t.Title,
		Category:      t.Category,
		AssetPath:     t.AssetPath,
		Hash:          inst.Hash,
		Version:       inst.Version,
		GeneratedAt:   inst.GeneratedAt,
		Parameters:    contractapi.CloneValues(inst.Parameters),
		Placeholders:  make(map[string]string, len(t.Variables)),
		Data:          data,
	}
	for _, v := range t.Variables {
		m.Placeholders[v.Name()] = v.Placeholder()
	}
	return json.MarshalIndent(m, "", "  ")
}

// ContentHash identifies a template and parameter combination. Map keys are
// marshaled in sorted order, so equal parameter sets always hash equally.
func ContentHash(templateID string, params map[string]string) string {
	canonical, _ := json.Marshal(params)
	h := sha256.New()
	h.Write([]byte(templateID))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// contractFilename is the download name of a generated version.
func contractFilename(title string, version int) string {
	stem := contractapi.SanitizeFilename(title)
	if stem == "" {
		stem = "contract"
	}
	return stem + "-v" + strconv.Itoa(version) + ".json"
}

// identifiers picks the values of the first two parameters in template
// order.
func identifiers(params []string, values map[string]string) contractapi.Identifiers {
	var ids contractapi.Identifiers
	if len(params) > 0 {
		ids.Primary = values[params[0]]
	}
	if len(params) > 1 {
		ids.Secondary = values[params[1]]
	}
	return ids
}
