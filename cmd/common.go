/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/valpere/metermeter/internal/lexicon"
	"github.com/valpere/metermeter/internal/meter"
	"github.com/valpere/metermeter/internal/scan"
	"github.com/valpere/metermeter/internal/store"
)

// app is what the scanning commands share: the engine, the optional
// database and the scan service built on both.
type app struct {
	engine  *meter.Engine
	db      *store.Store
	service *scan.Service
}

func newApp() (*app, error) {
	lex, err := lexicon.Load(cfg.Lexicon.Path, cfg.Lexicon.ExtraPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicon: %w", err)
	}
	logger.Debug("lexicon loaded", zap.Int("words", lex.Len()))

	a := &app{engine: meter.NewEngine(lex, logger.Named("meter"))}

	scanCfg := scan.Config{Refiner: cfg.RefinerConfig()}
	if !cfg.DB.Disabled && cfg.DB.Path != "" {
		db, err := openDB(cfg.DB.Path)
		if err != nil {
			return nil, err
		}
		a.db = db
		scanCfg.Cache = db
		scanCfg.Runs = db
	}

	a.service = scan.New(a.engine, scanCfg, logger.Named("scan"))
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}
}

func openDB(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
