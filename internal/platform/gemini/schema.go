package gemini

import (
	"google.golang.org/genai"

	"github.com/traqcheck/bgv-agent/internal/agent"
)

// declarations converts tool specs into a Gemini tool.
func declarations(specs []agent.ToolSpec) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		props := make(map[string]*genai.Schema, len(spec.Params))
		var required []string
		for _, p := range spec.Params {
			props[p.Name] = &genai.Schema{
				Type:        schemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func schemaType(t string) genai.Type {
	switch t {
	case agent.ParamInteger:
		return genai.TypeInteger
	default:
		return genai.TypeString
	}
}
