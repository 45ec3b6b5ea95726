// Package gemini runs the BGV agent on Google's Gemini API.
//
// An Agent sends the prompt together with the toolbox's function
// declarations, executes every function call the model returns and feeds the
// results back until the model answers with text or the turn budget runs
// out. API failures are returned as *APIError so the retry package can
// classify them by status code.
package gemini
