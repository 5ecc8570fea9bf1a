package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/okian/gavel/internal/adapters/http/api"
	app "github.com/okian/gavel/internal/app"
	"github.com/okian/gavel/internal/config"
	"github.com/okian/gavel/internal/domain/types"
	"github.com/okian/gavel/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestApplyLogging(t *testing.T) {
	convey.Convey("Given a loaded configuration", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Valid level and format are applied", func() {
			cfg.LogLevel = "debug"
			cfg.LogFormat = "json"
			convey.So(applyLogging(cfg), convey.ShouldBeNil)
		})

		convey.Convey("An unknown level falls back to info", func() {
			cfg.LogLevel = "chatty"
			convey.So(applyLogging(cfg), convey.ShouldBeNil)
		})

		convey.Convey("An unknown format is an error", func() {
			cfg.LogFormat = "xml"
			convey.So(applyLogging(cfg), convey.ShouldNotBeNil)
		})

		convey.Reset(func() {
			_ = logger.SetFormat("text")
			_ = logger.SetLevelString("info")
		})
	})
}

func TestRunRejectsBadConfig(t *testing.T) {
	convey.Convey("Given an invalid environment", t, func() {
		_ = os.Setenv("GAVEL_STORE_DRIVER", "paper")
		defer func() { _ = os.Unsetenv("GAVEL_STORE_DRIVER") }()

		convey.Convey("run fails before serving", func() {
			err := run(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestHandlerEndToEnd(t *testing.T) {
	convey.Convey("Given the full handler over an in-memory service", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.ShardCount = 2
		cfg.RandomSeed = 1

		svc := app.New(cfg)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(newHandler(ctx, svc, logger.Get()))
		defer srv.Close()

		send := func(method, path, body string) *http.Response {
			req, err := http.NewRequestWithContext(ctx, method, srv.URL+path, strings.NewReader(body))
			convey.So(err, convey.ShouldBeNil)
			resp, err := http.DefaultClient.Do(req)
			convey.So(err, convey.ShouldBeNil)
			return resp
		}

		for i, loc := range []int{1, 2, 3} {
			resp := send(http.MethodPut, fmt.Sprintf("/submissions/%d", i+1), fmt.Sprintf(`{"location":%d}`, loc))
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			_ = resp.Body.Close()
		}
		resp := send(http.MethodPut, "/judges/1", `{"name":"ada","anchor":1}`)
		convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		_ = resp.Body.Close()

		convey.Convey("A judge walks forward from the anchor and is rated", func() {
			resp := send(http.MethodPost, "/judges/1/assignments/next", "")
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)
			convey.So(resp.Header.Get(api.RequestIDHeader), convey.ShouldNotBeEmpty)

			var got types.AssignResponse
			convey.So(json.NewDecoder(resp.Body).Decode(&got), convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(got.SubmissionID, convey.ShouldEqual, 2)
			convey.So(got.Priority, convey.ShouldEqual, 1)

			resp = send(http.MethodPost, fmt.Sprintf("/assignments/%d/rating", got.AssignmentID), `{"rating":6}`)
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			_ = resp.Body.Close()

			resp = send(http.MethodGet, "/coverage", "")
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			var cov []types.Coverage
			convey.So(json.NewDecoder(resp.Body).Decode(&cov), convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(cov, convey.ShouldHaveLength, 3)
			convey.So(cov[1].CompletedRatings, convey.ShouldEqual, 1)
		})

		convey.Convey("An unknown judge is 404", func() {
			resp := send(http.MethodPost, "/judges/9/assignments", "")
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusNotFound)
			_ = resp.Body.Close()
		})

		convey.Convey("The docs and metrics routes are mounted", func() {
			for _, path := range []string{"/openapi.yaml", "/api-docs", "/healthz", "/stats"} {
				resp := send(http.MethodGet, path, "")
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				_ = resp.Body.Close()
			}
		})
	})
}
