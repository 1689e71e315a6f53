package narrative

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/lox/biascorrect/internal/httputil"
	"github.com/lox/biascorrect/internal/models"
)

const defaultModel = openai.ChatModelGPT4oMini

// Runs created in quick succession share the request budget.
const (
	requestInterval = 2 * time.Second
	requestBurst    = 3
)

const systemPrompt = `You summarise the result of a quantile-mapping bias correction of simulated daily climate data against station observations.
Write two or three plain sentences for a hydrologist. Mention which variables improved, by how much RMSE and bias changed, and any variable where the correction made RMSE worse. Do not use bullet points or headings.`

// Summarizer writes plain-language summaries of correction runs using the
// OpenAI chat completions API.
type Summarizer struct {
	client  openai.Client
	model   openai.ChatModel
	limiter *rate.Limiter
}

// NewSummarizer returns a summarizer for apiKey. An empty model selects the
// default.
func NewSummarizer(apiKey, model string) (*Summarizer, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	chatModel := openai.ChatModel(model)
	if model == "" {
		chatModel = defaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httputil.NewClient()),
	)
	return &Summarizer{
		client:  client,
		model:   chatModel,
		limiter: rate.NewLimiter(rate.Every(requestInterval), requestBurst),
	}, nil
}

// Summarize asks the model for a summary of the run's metrics.
func (s *Summarizer) Summarize(ctx context.Context, vars []models.VariableRun) (string, error) {
	if len(vars) == 0 {
		return "", errors.New("no variables to summarise")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(MetricsTable(vars)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion returned")
	}
	return text, nil
}

// SummarizeOrFallback returns the model summary, or the template summary if
// s is nil or the call fails.
func (s *Summarizer) SummarizeOrFallback(ctx context.Context, vars []models.VariableRun) string {
	if s == nil {
		return Fallback(vars)
	}
	text, err := s.Summarize(ctx, vars)
	if err != nil {
		log.Printf("narrative: %v, using template summary", err)
		return Fallback(vars)
	}
	return text
}

// MetricsTable renders the metrics as the plain-text table sent to the model.
func MetricsTable(vars []models.VariableRun) string {
	var b strings.Builder
	b.WriteString("variable | n | rmse_sim | rmse_corr | bias_sim | bias_corr | mean_obs | mean_sim | mean_corr\n")
	for _, v := range vars {
		p, m := v.Performance, v.Means
		fmt.Fprintf(&b, "%s (%s) | %d | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f\n",
			v.Variable, v.Variable.Units(), v.SampleSize,
			p.RMSESim, p.RMSECorr, p.BiasSim, p.BiasCorr, m.Observed, m.Simulated, m.Corrected)
	}
	return b.String()
}

// Fallback builds a deterministic summary from the metrics alone.
func Fallback(vars []models.VariableRun) string {
	var sentences []string
	for _, v := range vars {
		p := v.Performance
		units := v.Variable.Units()
		var verb string
		switch {
		case p.RMSECorr < p.RMSESim:
			verb = "improved"
		case p.RMSECorr > p.RMSESim:
			verb = "worsened"
		default:
			verb = "was unchanged"
		}
		sentences = append(sentences, fmt.Sprintf(
			"%s %s: RMSE %.2f → %.2f %s, bias %+.2f → %+.2f %s.",
			label(v.Variable), verb, p.RMSESim, p.RMSECorr, units, round2(p.BiasSim), round2(p.BiasCorr), units))
	}
	return strings.Join(sentences, " ")
}

func label(v models.Variable) string {
	switch v {
	case models.TempMin:
		return "Minimum temperature"
	case models.TempMax:
		return "Maximum temperature"
	case models.Precip:
		return "Precipitation"
	}
	return string(v)
}

// round2 avoids printing "-0.00" for tiny negative biases.
func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
