// Copyright 2025 Dataflix Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dataflix/dataflix/base/log"
	"github.com/dataflix/dataflix/config"
	"github.com/dataflix/dataflix/dataset"
	"github.com/dataflix/dataflix/engine"
	"github.com/dataflix/dataflix/storage/artifact"
	"github.com/dataflix/dataflix/storage/data"
	"github.com/dataflix/dataflix/trainer"
)

const defaultReturnNumber = 10

// RestServer exposes recommendation, training and registry endpoints.
type RestServer struct {
	Database    data.Database
	Store       artifact.Store
	Recommender *engine.Recommender
	Trainer     *trainer.Trainer
	Config      *config.Config
	WebService  *restful.WebService
}

// Health reports whether the service can serve recommendations.
type Health struct {
	Ready         bool  `json:"ready"`
	LatestVersion int64 `json:"latest_version"`
}

// TrainResult is the response of a synchronous training run.
type TrainResult struct {
	Version    int64        `json:"version"`
	RunId      string       `json:"run_id"`
	Iterations int          `json:"iterations"`
	Converged  bool         `json:"converged"`
	Metrics    TrainMetrics `json:"metrics"`
}

type TrainMetrics struct {
	RMSE                float32 `json:"rmse"`
	MAE                 float32 `json:"mae"`
	Sparsity            float32 `json:"sparsity"`
	ReconstructionError float32 `json:"reconstruction_err"`
}

// StartHttpServer starts the REST API server.
func (s *RestServer) StartHttpServer() {
	s.CreateWebService()
	restful.DefaultContainer.Add(s.WebService)
	// register swagger
	specConfig := restfulspec.Config{
		WebServices: restful.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	restful.DefaultContainer.Add(restfulspec.NewOpenAPIService(specConfig))
	// register prometheus
	http.Handle("/metrics", promhttp.Handler())

	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s:%d", s.Config.Server.HttpHost, s.Config.Server.HttpPort)))
	log.Logger().Fatal("failed to start http server",
		zap.Error(http.ListenAndServe(fmt.Sprintf("%s:%d", s.Config.Server.HttpHost, s.Config.Server.HttpPort), nil)))
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("used_time", time.Since(start)))
}

// CreateWebService creates the web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(LogFilter)

	ws.Route(ws.GET("/health").To(s.getHealth).
		Doc("Check the health of the service.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(Health{}))
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommendations for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommend"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Param(ws.QueryParameter("version", "pinned model version").DataType("integer")).
		Writes(engine.Result{}))
	ws.Route(ws.POST("/train").To(s.postTrain).
		Doc("Trigger a synchronous training run.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"train"}).
		Writes(TrainResult{}))
	ws.Route(ws.GET("/versions").To(s.getVersions).
		Doc("List trained model versions.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"train"}).
		Writes([]artifact.VersionInfo{}))
}

func (s *RestServer) getHealth(request *restful.Request, response *restful.Response) {
	health := Health{}
	version, err := s.Store.LatestVersion()
	if err != nil && !errors.Is(err, artifact.ErrNoModelTrained) {
		InternalServerError(response, err)
		return
	}
	health.Ready = err == nil
	health.LatestVersion = version
	Ok(response, health)
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	start := time.Now()
	userId, err := strconv.ParseInt(request.PathParameter("user-id"), 10, 64)
	if err != nil {
		BadRequest(response, err)
		return
	}
	n := defaultReturnNumber
	if raw := request.QueryParameter("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil {
			BadRequest(response, err)
			return
		}
	}
	var version int64
	if raw := request.QueryParameter("version"); raw != "" {
		if version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			BadRequest(response, err)
			return
		}
	}
	watched, err := s.Database.ListWatched(request.Request.Context(), userId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	result, err := s.Recommender.Recommend(engine.Query{
		UserId:         userId,
		N:              n,
		Version:        version,
		ExcludeWatched: mapset.NewSet(watched...),
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidArgument):
			BadRequest(response, err)
		case errors.Is(err, artifact.ErrNoModelTrained):
			ServiceUnavailable(response, err)
		case errors.Is(err, artifact.ErrArtifactNotFound):
			PageNotFound(response, err)
		default:
			InternalServerError(response, err)
		}
		return
	}
	RecommendTotal.WithLabelValues(result.Source).Inc()
	GetRecommendSeconds.Observe(time.Since(start).Seconds())
	Ok(response, result)
}

func (s *RestServer) postTrain(request *restful.Request, response *restful.Response) {
	start := time.Now()
	version, bundle, err := s.Trainer.RunOnce(request.Request.Context())
	if err != nil {
		if errors.Is(err, dataset.ErrInsufficientData) {
			BadRequest(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	TrainSeconds.Observe(time.Since(start).Seconds())
	Ok(response, TrainResult{
		Version:    version,
		RunId:      bundle.Metadata.RunId,
		Iterations: bundle.Metadata.Iterations,
		Converged:  bundle.Metadata.Converged,
		Metrics: TrainMetrics{
			RMSE:                bundle.Metrics.RMSE,
			MAE:                 bundle.Metrics.MAE,
			Sparsity:            bundle.Metrics.Sparsity,
			ReconstructionError: bundle.Metrics.ReconstructionError,
		},
	})
}

func (s *RestServer) getVersions(request *restful.Request, response *restful.Response) {
	versions, err := s.Store.ListVersions()
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, versions)
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns an internal server error.
func InternalServerError(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// ServiceUnavailable tells the client no model has been trained yet.
func ServiceUnavailable(response *restful.Response, err error) {
	if err := response.WriteError(http.StatusServiceUnavailable, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
