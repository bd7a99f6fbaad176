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

package main

import (
	"context"
	"fmt"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/emicklei/go-restful/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dataflix/dataflix/base/log"
	"github.com/dataflix/dataflix/config"
	"github.com/dataflix/dataflix/engine"
	"github.com/dataflix/dataflix/server"
	"github.com/dataflix/dataflix/storage/artifact"
	"github.com/dataflix/dataflix/storage/data"
	"github.com/dataflix/dataflix/trainer"
)

const version = "0.1.0"

var rootCommand = &cobra.Command{
	Use:   "dataflix",
	Short: "A collaborative filtering movie recommender.",
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start the recommendation server with periodic retraining.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := mustLoadConfig(cmd)
		database := mustOpenDatabase(conf)
		store := mustOpenStore(conf)

		ctx, cancel := context.WithCancel(context.Background())
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigint
			cancel()
		}()
		t := trainer.NewTrainer(database, store, &conf.NMF)
		go t.Loop(ctx, conf.Trainer.TrainPeriod)

		s := &server.RestServer{
			Database:    database,
			Store:       store,
			Recommender: engine.NewRecommender(store),
			Trainer:     t,
			Config:      conf,
			WebService:  new(restful.WebService),
		}
		s.StartHttpServer()
	},
}

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Run one training pass and publish a new model version.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := mustLoadConfig(cmd)
		database := mustOpenDatabase(conf)
		store := mustOpenStore(conf)
		t := trainer.NewTrainer(database, store, &conf.NMF)
		version, bundle, err := t.RunOnce(context.Background())
		if err != nil {
			log.Logger().Fatal("failed to train model", zap.Error(err))
		}
		fmt.Printf("version   %d\n", version)
		fmt.Printf("run_id    %s\n", bundle.Metadata.RunId)
		fmt.Printf("converged %v after %d iterations\n", bundle.Metadata.Converged, bundle.Metadata.Iterations)
		fmt.Printf("rmse      %f\n", bundle.Metrics.RMSE)
		fmt.Printf("mae       %f\n", bundle.Metrics.MAE)
	},
}

var versionsCommand = &cobra.Command{
	Use:   "versions",
	Short: "List trained model versions.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := mustLoadConfig(cmd)
		store := mustOpenStore(conf)
		versions, err := store.ListVersions()
		if err != nil {
			log.Logger().Fatal("failed to list versions", zap.Error(err))
		}
		for _, info := range versions {
			fmt.Printf("%d\t%s\t%s\trmse=%f\n", info.Version, info.Metadata.RunId,
				info.Metadata.TrainedAt.Format("2006-01-02 15:04:05"), info.Metrics.RMSE)
		}
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print the version of dataflix.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func mustLoadConfig(cmd *cobra.Command) *config.Config {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	log.SetLogger(cmd.Root().PersistentFlags(), debug)
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	if configPath != "" {
		log.Logger().Info("load config", zap.String("config", configPath))
	}
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	return conf
}

func mustOpenDatabase(conf *config.Config) data.Database {
	database, err := data.Open(conf.Database.Interactions)
	if err != nil {
		log.Logger().Fatal("failed to connect database",
			zap.String("url", log.RedactDBURL(conf.Database.Interactions)), zap.Error(err))
	}
	if err = database.Init(); err != nil {
		log.Logger().Fatal("failed to initialize database", zap.Error(err))
	}
	return database
}

func mustOpenStore(conf *config.Config) artifact.Store {
	store, err := artifact.NewPOSIX(conf.Database.Artifacts)
	if err != nil {
		log.Logger().Fatal("failed to open artifact store",
			zap.String("dir", conf.Database.Artifacts), zap.Error(err))
	}
	return store
}

func init() {
	rootCommand.PersistentFlags().String("config", "", "configuration file path")
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.AddCommand(serveCommand, trainCommand, versionsCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
