package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type rangeRequest struct {
	Series    string `query:"series" json:"series" default:"brent" validate:"required"`
	StartDate string `query:"start_date" json:"start_date" validate:"omitempty,date"`
	EndDate   string `query:"end_date" json:"end_date" validate:"omitempty,date,notbefore=StartDate"`
}

func bindQuery(t *testing.T, query string) ([]ValidationError, *rangeRequest) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	r := &rangeRequest{}
	res := ReadAndValidateRequest(c, r)
	if res == nil {
		return nil, r
	}
	errs, ok := res.([]ValidationError)
	if !ok {
		t.Fatalf("unexpected result type %T", res)
	}
	return errs, r
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	errs, r := bindQuery(t, "start_date=2020-01-01&end_date=2020-06-30")
	if errs != nil {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if r.Series != "brent" {
		t.Fatalf("default series not applied: %q", r.Series)
	}
}

func TestReadAndValidateRequestBadDate(t *testing.T) {
	errs, _ := bindQuery(t, "start_date=yesterday")
	if len(errs) != 1 || errs[0].Code != "ERR_DATE" || errs[0].Field != "start_date" {
		t.Fatalf("unexpected errors: %+v", errs)
	}
}

func TestReadAndValidateRequestReversedRange(t *testing.T) {
	errs, _ := bindQuery(t, "start_date=2020-06-30&end_date=2020-01-01")
	if len(errs) != 1 || errs[0].Code != "ERR_NOTBEFORE" {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if errs[0].Params["field"] != "start_date" {
		t.Fatalf("params = %+v", errs[0].Params)
	}
}

func TestReadAndValidateRequestOpenRange(t *testing.T) {
	if errs, _ := bindQuery(t, "end_date=2020-01-01"); errs != nil {
		t.Fatalf("end date alone should validate: %+v", errs)
	}
}
