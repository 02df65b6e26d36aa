// Package milvus 提供 Milvus 向量数据库的 core.VectorIndex 实现。
// 目录规模超出单机内存快照时使用；结构化过滤下推到服务端执行。
//
// 注意：此实现位于扩展包中，需要单独引入：
//
//	go get github.com/maxwelljhuang/knytt/ext/vector/milvus
package milvus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/maxwelljhuang/knytt/core"
)

// Index 是 Milvus 集合上的商品向量索引。
//
// 集合 Schema：
//
//	id         varchar(255) 主键
//	vector     float_vector(dim)，COSINE
//	price      float
//	category   varchar(255)
//	brand      varchar(255)
//	in_stock   bool
//	quality    float
//	created_at int64（unix 秒）
type Index struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string

	client *milvusclient.Client
	size   atomic.Int64
}

// Option 配置 Index。
type Option func(*Index)

// WithAuth 设置认证信息。
func WithAuth(username, password string) Option {
	return func(ix *Index) {
		ix.Username = username
		ix.Password = password
	}
}

// WithDatabase 设置数据库。
func WithDatabase(database string) Option {
	return func(ix *Index) {
		ix.Database = database
	}
}

// NewIndex 连接 Milvus 并创建索引实例。
func NewIndex(address, collection string, opts ...Option) (*Index, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	ix := &Index{
		Address:    address,
		Collection: collection,
		Database:   "default",
	}
	for _, opt := range opts {
		opt(ix)
	}

	client, err := milvusclient.New(context.Background(), &milvusclient.ClientConfig{
		Address:  ix.Address,
		Username: ix.Username,
		Password: ix.Password,
		DBName:   ix.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("create milvus client: %w", err)
	}
	ix.client = client
	return ix, nil
}

// EnsureCollection 创建集合与向量索引（已存在则跳过）。
func (ix *Index) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("dimension must be greater than 0")
	}

	exists, err := ix.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(ix.Collection))
	if err != nil {
		return fmt.Errorf("milvus has collection failed: %w", err)
	}
	if exists {
		return nil
	}

	schemaDef := entity.NewSchema().
		WithName(ix.Collection).
		WithField(entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(255).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName("vector").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim))).
		WithField(entity.NewField().
			WithName("price").
			WithDataType(entity.FieldTypeFloat)).
		WithField(entity.NewField().
			WithName("category").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(255)).
		WithField(entity.NewField().
			WithName("brand").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(255)).
		WithField(entity.NewField().
			WithName("in_stock").
			WithDataType(entity.FieldTypeBool)).
		WithField(entity.NewField().
			WithName("quality").
			WithDataType(entity.FieldTypeFloat)).
		WithField(entity.NewField().
			WithName("created_at").
			WithDataType(entity.FieldTypeInt64))

	indexOpt := milvusclient.NewCreateIndexOption(ix.Collection, "vector", index.NewAutoIndex(entity.COSINE))
	createOption := milvusclient.NewCreateCollectionOption(ix.Collection, schemaDef).
		WithIndexOptions(indexOpt)

	if err := ix.client.CreateCollection(ctx, createOption); err != nil {
		return fmt.Errorf("milvus create collection failed: %w", err)
	}
	return nil
}

// Upsert 批量写入商品（embedding 必须同维）。
func (ix *Index) Upsert(ctx context.Context, products []core.ProductEntry) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, len(products))
	vectors := make([][]float32, len(products))
	prices := make([]float32, len(products))
	categories := make([]string, len(products))
	brands := make([]string, len(products))
	inStock := make([]bool, len(products))
	qualities := make([]float32, len(products))
	createdAt := make([]int64, len(products))
	for i, p := range products {
		if len(p.Embedding) == 0 {
			return fmt.Errorf("product %s has no embedding", p.ID)
		}
		ids[i] = p.ID
		vectors[i] = toFloat32(p.Embedding)
		prices[i] = float32(p.Price)
		categories[i] = p.Category
		brands[i] = p.Brand
		inStock[i] = p.InStock
		qualities[i] = float32(p.Quality)
		createdAt[i] = p.CreatedAt.Unix()
	}

	upsertOption := milvusclient.NewColumnBasedInsertOption(ix.Collection,
		column.NewColumnVarChar("id", ids),
		column.NewColumnFloatVector("vector", len(vectors[0]), vectors),
		column.NewColumnFloat("price", prices),
		column.NewColumnVarChar("category", categories),
		column.NewColumnVarChar("brand", brands),
		column.NewColumnBool("in_stock", inStock),
		column.NewColumnFloat("quality", qualities),
		column.NewColumnInt64("created_at", createdAt),
	)
	if _, err := ix.client.Upsert(ctx, upsertOption); err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}
	ix.size.Add(int64(len(products)))
	return nil
}

// Search 实现 core.VectorIndex 接口。结构化过滤下推为 Milvus
// 过滤表达式，无需客户端的 pre/post-filter 策略选择。
func (ix *Index) Search(ctx context.Context, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	if req == nil || len(req.Vector) == 0 {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "milvus: empty query vector")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	searchOption := milvusclient.NewSearchOption(ix.Collection, topK,
		[]entity.Vector{entity.FloatVector(toFloat32(req.Vector))}).
		WithOutputFields("id", "vector", "price", "category", "brand", "in_stock", "quality", "created_at")

	if expr, params := buildFilterExpr(req.Filters); expr != "" {
		for name, v := range params {
			searchOption = searchOption.WithTemplateParam(name, v)
		}
		searchOption = searchOption.WithFilter(expr)
	}

	searchResults, err := ix.client.Search(ctx, searchOption)
	if err != nil {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeUnavailable,
			fmt.Sprintf("milvus search failed: %v", err))
	}

	items := make([]core.VectorSearchItem, 0, topK)
	for _, rs := range searchResults {
		if rs.Err != nil {
			continue
		}
		for i := 0; i < rs.Len(); i++ {
			id, _ := rs.IDs.Get(i)
			strID, ok := id.(string)
			if !ok {
				strID = fmt.Sprintf("%v", id)
			}
			item := core.VectorSearchItem{ID: strID, Entry: extractEntry(strID, rs.Fields, i)}
			if i < len(rs.Scores) {
				item.Score = float64(rs.Scores[i])
			}
			items = append(items, item)
		}
	}

	return &core.VectorSearchResult{
		Items:    items,
		Strategy: "milvus",
	}, nil
}

// Size 返回最近一次 Upsert 累积的规模（近似值，供观测）。
func (ix *Index) Size() int {
	return int(ix.size.Load())
}

// GetProduct 实现 core.Catalog 接口：按主键查询。
func (ix *Index) GetProduct(ctx context.Context, id string) (*core.ProductEntry, bool, error) {
	queryOption := milvusclient.NewQueryOption(ix.Collection).
		WithFilter(`id == $pid`).
		WithTemplateParam("pid", id).
		WithOutputFields("id", "vector", "price", "category", "brand", "in_stock", "quality", "created_at")

	rs, err := ix.client.Query(ctx, queryOption)
	if err != nil {
		return nil, false, core.NewDomainError(core.ModuleVector, core.ErrorCodeUnavailable,
			fmt.Sprintf("milvus query failed: %v", err))
	}
	if rs.ResultCount == 0 {
		return nil, false, nil
	}
	return extractEntry(id, rs.Fields, 0), true, nil
}

// Close 关闭连接。
func (ix *Index) Close() error {
	if ix.client != nil {
		return ix.client.Close(context.Background())
	}
	return nil
}

// buildFilterExpr 把结构化过滤转成 Milvus 过滤表达式与模板参数。
func buildFilterExpr(f *core.ProductFilters) (string, map[string]any) {
	if f == nil {
		return "", nil
	}
	exprs := make([]string, 0, 4)
	params := make(map[string]any)

	if f.MinPrice != nil {
		exprs = append(exprs, "price >= $min_price")
		params["min_price"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		exprs = append(exprs, "price <= $max_price")
		params["max_price"] = *f.MaxPrice
	}
	if len(f.Categories) > 0 {
		exprs = append(exprs, "category in $categories")
		params["categories"] = f.Categories
	}
	if f.InStock != nil {
		exprs = append(exprs, "in_stock == $in_stock")
		params["in_stock"] = *f.InStock
	}
	if len(exprs) == 0 {
		return "", nil
	}
	return strings.Join(exprs, " && "), params
}

// extractEntry 从输出列还原商品快照；列缺失时保留零值。
func extractEntry(id string, fields []column.Column, row int) *core.ProductEntry {
	entry := &core.ProductEntry{ID: id}
	for _, col := range fields {
		switch col.Name() {
		case "vector":
			if fv, ok := col.(*column.ColumnFloatVector); ok && row < fv.Len() {
				data := fv.Data()[row]
				entry.Embedding = make([]float64, len(data))
				for i, v := range data {
					entry.Embedding[i] = float64(v)
				}
			}
		case "price":
			if v, err := col.GetAsDouble(row); err == nil {
				entry.Price = v
			}
		case "category":
			if v, err := col.GetAsString(row); err == nil {
				entry.Category = v
			}
		case "brand":
			if v, err := col.GetAsString(row); err == nil {
				entry.Brand = v
			}
		case "in_stock":
			if v, err := col.GetAsBool(row); err == nil {
				entry.InStock = v
			}
		case "quality":
			if v, err := col.GetAsDouble(row); err == nil {
				entry.Quality = v
			}
		case "created_at":
			if v, err := col.GetAsInt64(row); err == nil {
				entry.CreatedAt = time.Unix(v, 0)
			}
		}
	}
	return entry
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

var _ core.VectorIndex = (*Index)(nil)
var _ core.Catalog = (*Index)(nil)
