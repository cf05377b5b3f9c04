package external

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Open Trivia DB response codes.
const (
	ResponseSuccess   = 0
	ResponseNoResults = 1
)

// RemoteFetchError reports a non-2xx answer from the trivia API.
type RemoteFetchError struct {
	StatusCode int
	Body       string
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("opentdb non-2xx: %d", e.StatusCode)
}

// ResponseCodeError reports a 2xx answer whose response_code signals failure
// (invalid parameter, token problems, rate limiting).
type ResponseCodeError struct {
	Code int
}

func (e *ResponseCodeError) Error() string {
	return fmt.Sprintf("opentdb response code %d", e.Code)
}

// FetchParams are the optional filters of one fetch. Zero values mean
// "no filter" and are left out of the query.
type FetchParams struct {
	Amount     int
	Category   int
	Difficulty string
	Type       string
}

// BuildQuery encodes p as api.php query parameters.
func BuildQuery(p FetchParams) url.Values {
	values := url.Values{}
	values.Set("amount", strconv.Itoa(p.Amount))
	if p.Category != 0 {
		values.Set("category", strconv.Itoa(p.Category))
	}
	if p.Difficulty != "" {
		values.Set("difficulty", p.Difficulty)
	}
	if p.Type != "" {
		values.Set("type", p.Type)
	}
	return values
}

// OpenTDBClient fetches questions from the Open Trivia DB (no API key).
type OpenTDBClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenTDBClient(baseURL string, httpClient *http.Client) *OpenTDBClient {
	if baseURL == "" {
		baseURL = "https://opentdb.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OpenTDBClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type OpenTDBQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type openTDBResponse struct {
	ResponseCode int               `json:"response_code"`
	Results      []OpenTDBQuestion `json:"results"`
}

// Fetch performs one GET against api.php. Text fields come back with HTML
// entities decoded; category, type and difficulty are returned as sent.
func (c *OpenTDBClient) Fetch(ctx context.Context, p FetchParams) ([]OpenTDBQuestion, error) {
	endpoint := fmt.Sprintf("%s/api.php?%s", c.baseURL, BuildQuery(p).Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opentdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &RemoteFetchError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload openTDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode opentdb payload: %w", err)
	}
	switch payload.ResponseCode {
	case ResponseSuccess:
	case ResponseNoResults:
		return []OpenTDBQuestion{}, nil
	default:
		return nil, &ResponseCodeError{Code: payload.ResponseCode}
	}

	for i := range payload.Results {
		payload.Results[i] = unescape(payload.Results[i])
	}
	return payload.Results, nil
}

func unescape(q OpenTDBQuestion) OpenTDBQuestion {
	q.Question = html.UnescapeString(q.Question)
	q.CorrectAnswer = html.UnescapeString(q.CorrectAnswer)
	incorrect := make([]string, len(q.IncorrectAnswers))
	for i, a := range q.IncorrectAnswers {
		incorrect[i] = html.UnescapeString(a)
	}
	q.IncorrectAnswers = incorrect
	return q
}
