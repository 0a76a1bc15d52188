// Package lake writes the normalized silver tables as Parquet files
package lake

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
)

var (
	basicsSchema = arrow.NewSchema([]arrow.Field{
		{Name: "tconst", Type: arrow.BinaryTypes.String},
		{Name: "titleType", Type: arrow.BinaryTypes.String},
		{Name: "primaryTitle", Type: arrow.BinaryTypes.String},
		{Name: "originalTitle", Type: arrow.BinaryTypes.String},
		{Name: "isAdult", Type: arrow.PrimitiveTypes.Int32},
		{Name: "startYear", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "endYear", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "runtimeMinutes", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "genres", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	ratingsSchema = arrow.NewSchema([]arrow.Field{
		{Name: "tconst", Type: arrow.BinaryTypes.String},
		{Name: "averageRating", Type: arrow.PrimitiveTypes.Float64},
		{Name: "numVotes", Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	episodesSchema = arrow.NewSchema([]arrow.Field{
		{Name: "tconst", Type: arrow.BinaryTypes.String},
		{Name: "parentTconst", Type: arrow.BinaryTypes.String},
		{Name: "seasonNumber", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "episodeNumber", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	}, nil)
)

// Writer encodes silver tables into a snapshot directory
type Writer struct {
	pool      memory.Allocator
	createdBy string
}

// NewWriter creates a Parquet writer. createdBy is stamped into file metadata.
func NewWriter(createdBy string) *Writer {
	return &Writer{pool: memory.NewGoAllocator(), createdBy: createdBy}
}

// WriteSilver writes all three tables into dir and returns the artifact name
// of each table keyed by table name.
func (w *Writer) WriteSilver(dir string, s *imdb.Silver) (map[string]string, error) {
	outputs := make(map[string]string, len(imdb.Tables))

	writes := []struct {
		table string
		build func() arrow.Record
	}{
		{imdb.TableBasics, func() arrow.Record { return w.basicsRecord(s.Basics) }},
		{imdb.TableRatings, func() arrow.Record { return w.ratingsRecord(s.Ratings) }},
		{imdb.TableEpisodes, func() arrow.Record { return w.episodesRecord(s.Episodes) }},
	}

	for _, wr := range writes {
		name := imdb.ParquetName(wr.table)
		record := wr.build()
		err := w.writeFile(filepath.Join(dir, name), record)
		record.Release()
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", wr.table, err)
		}
		outputs[wr.table] = name
	}
	return outputs, nil
}

func (w *Writer) writeFile(path string, record arrow.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy(w.createdBy),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(record.Schema(), f, props, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func (w *Writer) basicsRecord(titles []imdb.Title) arrow.Record {
	b := array.NewRecordBuilder(w.pool, basicsSchema)
	defer b.Release()

	tconst := b.Field(0).(*array.StringBuilder)
	titleType := b.Field(1).(*array.StringBuilder)
	primary := b.Field(2).(*array.StringBuilder)
	original := b.Field(3).(*array.StringBuilder)
	isAdult := b.Field(4).(*array.Int32Builder)
	startYear := b.Field(5).(*array.Int32Builder)
	endYear := b.Field(6).(*array.Int32Builder)
	runtime := b.Field(7).(*array.Int32Builder)
	genres := b.Field(8).(*array.StringBuilder)

	for _, t := range titles {
		tconst.Append(t.Tconst)
		titleType.Append(t.TitleType)
		primary.Append(t.PrimaryTitle)
		original.Append(t.OriginalTitle)
		isAdult.Append(t.IsAdult)
		appendInt32(startYear, t.StartYear)
		appendInt32(endYear, t.EndYear)
		appendInt32(runtime, t.RuntimeMinutes)
		if t.Genres.Valid {
			genres.Append(t.Genres.V)
		} else {
			genres.AppendNull()
		}
	}
	return b.NewRecord()
}

func (w *Writer) ratingsRecord(ratings []imdb.Rating) arrow.Record {
	b := array.NewRecordBuilder(w.pool, ratingsSchema)
	defer b.Release()

	tconst := b.Field(0).(*array.StringBuilder)
	avg := b.Field(1).(*array.Float64Builder)
	votes := b.Field(2).(*array.Int64Builder)

	for _, r := range ratings {
		tconst.Append(r.Tconst)
		avg.Append(r.AverageRating)
		votes.Append(r.NumVotes)
	}
	return b.NewRecord()
}

func (w *Writer) episodesRecord(episodes []imdb.Episode) arrow.Record {
	b := array.NewRecordBuilder(w.pool, episodesSchema)
	defer b.Release()

	tconst := b.Field(0).(*array.StringBuilder)
	parent := b.Field(1).(*array.StringBuilder)
	season := b.Field(2).(*array.Int32Builder)
	episode := b.Field(3).(*array.Int32Builder)

	for _, e := range episodes {
		tconst.Append(e.Tconst)
		parent.Append(e.ParentTconst)
		appendInt32(season, e.SeasonNumber)
		appendInt32(episode, e.EpisodeNumber)
	}
	return b.NewRecord()
}

func appendInt32(b *array.Int32Builder, v sql.Null[int32]) {
	if v.Valid {
		b.Append(v.V)
		return
	}
	b.AppendNull()
}
