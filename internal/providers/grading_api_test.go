package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

type capturedRequest struct {
	Header http.Header
	Body   map[string]any
}

// fakeReviewService mimics the GraphQL endpoint of the review service.
func fakeReviewService(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var captured []capturedRequest
	r := gin.New()
	r.POST("/graphql", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		captured = append(captured, capturedRequest{Header: c.Request.Header.Clone(), Body: body})
		c.Data(status, "application/json", []byte(response))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &captured
}

func sampleVariables() domain.Variables {
	return domain.Variables{
		SubmissionID: "S1",
		Checklist:    json.RawMessage(`{"a":true}`),
		Feedback:     "good job",
		Grades: []domain.GradeInput{
			{EvaluationCriterionID: "C1", Grade: 10},
			{EvaluationCriterionID: "C2", Grade: 5},
		},
	}
}

func TestGradeSubmissionSendsMutation(t *testing.T) {
	srv, captured := fakeReviewService(t, http.StatusOK, `{"data":{"createGrading":{"success":true}}}`)
	api := NewGradingAPI(srv.URL+"/graphql", "secret-token", 5*time.Second, WithRequestID(func() string { return "req-1" }))

	data, err := api.GradeSubmission(context.Background(), sampleVariables())
	if err != nil {
		t.Fatalf("GradeSubmission: %v", err)
	}
	if string(data) != `{"createGrading":{"success":true}}` {
		t.Errorf("data = %s", data)
	}

	if len(*captured) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if got := req.Header.Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("X-Request-Id"); got != "req-1" {
		t.Errorf("X-Request-Id = %q", got)
	}
	if req.Body["operationName"] != "GradeSubmission" {
		t.Errorf("operationName = %v", req.Body["operationName"])
	}
	vars, ok := req.Body["variables"].(map[string]any)
	if !ok {
		t.Fatalf("variables missing: %v", req.Body)
	}
	if vars["submissionId"] != "S1" || vars["feedback"] != "good job" {
		t.Errorf("variables = %v", vars)
	}
	grades, ok := vars["grades"].([]any)
	if !ok || len(grades) != 2 {
		t.Errorf("grades = %v", vars["grades"])
	}
}

func TestGradeSubmissionOmitsEmptyGrades(t *testing.T) {
	srv, captured := fakeReviewService(t, http.StatusOK, `{"data":{"createGrading":{"success":true}}}`)
	api := NewGradingAPI(srv.URL+"/graphql", "t", 0)

	vars := sampleVariables()
	vars.Grades = nil
	if _, err := api.GradeSubmission(context.Background(), vars); err != nil {
		t.Fatalf("GradeSubmission: %v", err)
	}
	sent := (*captured)[0].Body["variables"].(map[string]any)
	if _, present := sent["grades"]; present {
		t.Errorf("grades should be absent, got %v", sent["grades"])
	}
}

func TestGradeSubmissionHTTPError(t *testing.T) {
	srv, _ := fakeReviewService(t, http.StatusUnauthorized, `{"message":"bad token"}`)
	api := NewGradingAPI(srv.URL+"/graphql", "t", 0)

	_, err := api.GradeSubmission(context.Background(), sampleVariables())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
}

func TestGradeSubmissionGraphQLErrors(t *testing.T) {
	srv, _ := fakeReviewService(t, http.StatusOK, `{"data":null,"errors":[{"message":"submission not found"}]}`)
	api := NewGradingAPI(srv.URL+"/graphql", "t", 0)

	_, err := api.GradeSubmission(context.Background(), sampleVariables())
	var gqlErrs GraphQLErrors
	if !errors.As(err, &gqlErrs) {
		t.Fatalf("expected GraphQLErrors, got %v", err)
	}
	if gqlErrs.Error() != "graphql: submission not found" {
		t.Errorf("error = %q", gqlErrs.Error())
	}
}

func TestGradeSubmissionMalformedResponse(t *testing.T) {
	srv, _ := fakeReviewService(t, http.StatusOK, `<html>`)
	api := NewGradingAPI(srv.URL+"/graphql", "t", 0)

	if _, err := api.GradeSubmission(context.Background(), sampleVariables()); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestGradeSubmissionTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	api := NewGradingAPI(url, "t", time.Second)
	if _, err := api.GradeSubmission(context.Background(), sampleVariables()); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestGradeSubmissionRejectsMissingEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "  ", "review.example.com/graphql", "ftp://review.example.com"} {
		api := NewGradingAPI(endpoint, "t", time.Second)
		_, err := api.GradeSubmission(context.Background(), sampleVariables())
		if !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("endpoint %q: expected ErrInvalidEndpoint, got %v", endpoint, err)
		}
		if errors.Is(err, domain.ErrConfig) {
			t.Errorf("endpoint %q: must not be a config error", endpoint)
		}
	}
}
