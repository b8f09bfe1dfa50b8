package chat

import "strings"

// Gemini generateContent request and response types.

type apiRequest struct {
	SystemInstruction *apiContent         `json:"systemInstruction,omitempty"`
	Contents          []apiContent        `json:"contents"`
	SafetySettings    []apiSafetySetting  `json:"safetySettings,omitempty"`
	GenerationConfig  apiGenerationConfig `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text string `json:"text"`
}

type apiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type apiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
	TopK        int     `json:"topK"`
}

type apiResponse struct {
	Candidates []struct {
		Content      apiContent `json:"content"`
		FinishReason string     `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// text returns the concatenated text of the first candidate.
func (r *apiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
