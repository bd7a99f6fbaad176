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

package data

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	_ "github.com/mailru/go-clickhouse/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"

	"github.com/dataflix/dataflix/dataset"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	ClickHouse
	SQLite
)

// SQLDatabase stores interactions in a SQL database.
type SQLDatabase struct {
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates the interaction table.
func (d *SQLDatabase) Init() error {
	switch d.driver {
	case MySQL:
		type Interaction struct {
			UserId  int64   `gorm:"column:user_id;type:bigint not null;primaryKey"`
			ItemId  int64   `gorm:"column:item_id;type:bigint not null;primaryKey;index:item_id"`
			Watched bool    `gorm:"column:watched;type:bool not null"`
			Rating  float32 `gorm:"column:rating;type:float not null"`
			Liked   bool    `gorm:"column:liked;type:bool not null"`
		}
		err := d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").AutoMigrate(Interaction{})
		if err != nil {
			return errors.Trace(err)
		}
	case Postgres:
		type Interaction struct {
			UserId  int64   `gorm:"column:user_id;type:bigint not null;primaryKey"`
			ItemId  int64   `gorm:"column:item_id;type:bigint not null;primaryKey;index:item_id_index"`
			Watched bool    `gorm:"column:watched;type:bool not null default false"`
			Rating  float32 `gorm:"column:rating;type:real not null default 0"`
			Liked   bool    `gorm:"column:liked;type:bool not null default false"`
		}
		err := d.gormDB.AutoMigrate(Interaction{})
		if err != nil {
			return errors.Trace(err)
		}
	case ClickHouse:
		type Interaction struct {
			UserId  int64    `gorm:"column:user_id;type:Int64"`
			ItemId  int64    `gorm:"column:item_id;type:Int64"`
			Watched bool     `gorm:"column:watched;type:Boolean default 0"`
			Rating  float32  `gorm:"column:rating;type:Float32 default 0"`
			Liked   bool     `gorm:"column:liked;type:Boolean default 0"`
			Version struct{} `gorm:"column:version;type:DateTime"`
		}
		err := d.gormDB.Set("gorm:table_options", "ENGINE = ReplacingMergeTree(version) ORDER BY (user_id, item_id)").AutoMigrate(Interaction{})
		if err != nil {
			return errors.Trace(err)
		}
	case SQLite:
		err := d.gormDB.AutoMigrate(Interaction{})
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge removes all interactions.
func (d *SQLDatabase) Purge() error {
	if d.driver == ClickHouse {
		if err := d.gormDB.Exec("TRUNCATE TABLE interaction").Error; err != nil {
			return errors.Trace(err)
		}
		return nil
	}
	if err := d.gormDB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Interaction{}).Error; err != nil {
		return errors.Trace(err)
	}
	return nil
}

// BatchInsertInteractions upserts rows keyed by (user_id, item_id).
func (d *SQLDatabase) BatchInsertInteractions(ctx context.Context, interactions []dataset.Interaction) error {
	if len(interactions) == 0 {
		return nil
	}
	rows := make([]Interaction, len(interactions))
	for i, interaction := range interactions {
		rows[i] = Interaction{
			UserId:  interaction.UserId,
			ItemId:  interaction.ItemId,
			Watched: interaction.Watched,
			Rating:  interaction.Rating,
			Liked:   interaction.Liked,
		}
	}
	tx := d.gormDB.WithContext(ctx)
	if d.driver == ClickHouse {
		// ReplacingMergeTree deduplicates by sorting key on merge
		if err := tx.Create(rows).Error; err != nil {
			return errors.Trace(err)
		}
		return nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		UpdateAll: true,
	}).Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) CountInteractions(ctx context.Context) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Model(&Interaction{}).Count(&count).Error
	return count, errors.Trace(err)
}

// ListInteractions returns all rows ordered by (user_id, item_id).
func (d *SQLDatabase) ListInteractions(ctx context.Context) ([]dataset.Interaction, error) {
	var rows []Interaction
	tx := d.gormDB.WithContext(ctx).Model(&Interaction{}).
		Select("user_id", "item_id", "watched", "rating", "liked").
		Order("user_id, item_id")
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	interactions := make([]dataset.Interaction, len(rows))
	for i, row := range rows {
		interactions[i] = dataset.Interaction{
			UserId:  row.UserId,
			ItemId:  row.ItemId,
			Watched: row.Watched,
			Rating:  row.Rating,
			Liked:   row.Liked,
		}
	}
	return interactions, nil
}

// ListWatched returns the ids of items a user has watched, ascending.
func (d *SQLDatabase) ListWatched(ctx context.Context, userId int64) ([]int64, error) {
	var itemIds []int64
	err := d.gormDB.WithContext(ctx).Model(&Interaction{}).
		Where("user_id = ? AND watched", userId).
		Order("item_id").
		Pluck("item_id", &itemIds).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return itemIds, nil
}
