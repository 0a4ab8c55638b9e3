// Copyright 2025 gamelens Project Authors
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

package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gamelens/gamelens/base"
	"github.com/gamelens/gamelens/base/log"
)

// gameMetadata is one line of the line-delimited metadata file.
type gameMetadata struct {
	AppId       int64    `json:"app_id"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// ImplicitRating derives a continuous rating from the recommended flag and
// play time. The base score is 2.5 for a positive review and 1.5 otherwise; a
// logarithmic play-time boost adds up to 2 points per 100 hours scale, capped
// at 5.0.
func ImplicitRating(recommended bool, hours float32) float32 {
	score := float32(1.5)
	if recommended {
		score = 2.5
	}
	boost := math32.Log1p(hours) / math32.Log(101)
	return math32.Min(5, score+2*boost)
}

// PrepareOptions names the raw inputs and prepared outputs of the data
// preparation step.
type PrepareOptions struct {
	GamesCSV     string // raw catalog: app_id, title, ...
	MetadataJSON string // line-delimited JSON: app_id, description, tags
	ReviewsCSV   string // raw reviews: user_id, app_id, is_recommended, hours
	GamesOut     string // prepared games table
	RatingsOut   string // prepared ratings table
}

// Prepare converts the raw catalog, metadata and review files into the two
// prepared tables consumed by the recommender. Output files ending in .gz are
// gzip-compressed.
func Prepare(opts PrepareOptions) error {
	texts, err := loadMetadata(opts.MetadataJSON)
	if err != nil {
		return err
	}
	if err := prepareGames(opts.GamesCSV, opts.GamesOut, texts); err != nil {
		return err
	}
	return prepareRatings(opts.ReviewsCSV, opts.RatingsOut)
}

func loadMetadata(path string) (map[int64]string, error) {
	file, err := openTable(path)
	if err != nil {
		return nil, errors.Annotatef(base.ErrData, "open metadata: %v", err)
	}
	defer file.Close()
	texts := make(map[int64]string)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var meta gameMetadata
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			return nil, errors.Annotatef(base.ErrData, "parse metadata line: %v", err)
		}
		// tags first, then the free-text description
		texts[meta.AppId] = strings.TrimSpace(strings.Join(meta.Tags, " ") + " " + meta.Description)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotatef(base.ErrData, "scan metadata: %v", err)
	}
	return texts, nil
}

func createTable(path string) (io.WriteCloser, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if strings.HasSuffix(path, ".gz") {
		return &gzipWriteCloser{writer: gzip.NewWriter(file), file: file}, nil
	}
	return file, nil
}

type gzipWriteCloser struct {
	writer *gzip.Writer
	file   *os.File
}

func (g *gzipWriteCloser) Write(p []byte) (int, error) { return g.writer.Write(p) }

func (g *gzipWriteCloser) Close() error {
	if err := g.writer.Close(); err != nil {
		_ = g.file.Close()
		return err
	}
	return g.file.Close()
}

func prepareGames(in, out string, texts map[int64]string) error {
	file, err := openTable(in)
	if err != nil {
		return errors.Annotatef(base.ErrData, "open games: %v", err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	h, err := readHeader(reader, "app_id", "title")
	if err != nil {
		return err
	}
	output, err := createTable(out)
	if err != nil {
		return errors.Annotatef(base.ErrPersistence, "create games table: %v", err)
	}
	defer output.Close()
	writer := csv.NewWriter(output)
	if err := writer.Write([]string{"gameId", "title", "genres"}); err != nil {
		return errors.Trace(err)
	}
	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Annotatef(base.ErrData, "read games row: %v", err)
		}
		appId, err := strconv.ParseInt(record[h["app_id"]], 10, 64)
		if err != nil {
			return errors.Annotatef(base.ErrData, "parse app_id: %v", err)
		}
		row := []string{record[h["app_id"]], record[h["title"]], texts[appId]}
		if err := writer.Write(row); err != nil {
			return errors.Trace(err)
		}
		count++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("prepared games table",
		zap.String("path", out), zap.Int("num_games", count))
	return nil
}

func prepareRatings(in, out string) error {
	file, err := openTable(in)
	if err != nil {
		return errors.Annotatef(base.ErrData, "open reviews: %v", err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	h, err := readHeader(reader, "user_id", "app_id", "is_recommended", "hours")
	if err != nil {
		return err
	}
	output, err := createTable(out)
	if err != nil {
		return errors.Annotatef(base.ErrPersistence, "create ratings table: %v", err)
	}
	defer output.Close()
	writer := csv.NewWriter(output)
	if err := writer.Write([]string{"userId", "gameId", "rating"}); err != nil {
		return errors.Trace(err)
	}
	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Annotatef(base.ErrData, "read reviews row: %v", err)
		}
		recommended := strings.EqualFold(record[h["is_recommended"]], "true")
		hours, _ := strconv.ParseFloat(record[h["hours"]], 32)
		rating := ImplicitRating(recommended, float32(hours))
		row := []string{
			record[h["user_id"]],
			record[h["app_id"]],
			strconv.FormatFloat(float64(rating), 'f', -1, 32),
		}
		if err := writer.Write(row); err != nil {
			return errors.Trace(err)
		}
		count++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("prepared ratings table",
		zap.String("path", out), zap.Int("num_ratings", count))
	return nil
}
