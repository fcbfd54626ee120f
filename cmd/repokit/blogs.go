package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"repokit/config"
	"repokit/examples/blogging"
	"repokit/page"
	"repokit/query"
	"repokit/repository"
	"repokit/validation"
)

// searchOptions blogs 命令的检索条件
type searchOptions struct {
	TitleContains string
	TitlePrefix   string
	TypeID        int
	TypeName      string
	MinRating     float64
	Sort          string
	Page          int
	Size          int
	Top           int
	Include       []string
	Archived      bool
	JSON          bool
}

var blogIncludes = []string{"Type", "Posts", "Posts.Comments"}

func newBlogsCmd() *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "blogs",
		Short: "Search blogs with dynamic filters, sorting and paging",
		Example: `  repokit blogs --title-contains "Blog 1" --sort -Rating,Id --page 2 --size 10
  repokit blogs --type tech --top 5 --include Type`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
				return searchBlogs(ctx, cmd.OutOrStdout(), a.cfg.Query, a.repos, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.TitleContains, "title-contains", "", "title contains substring (case-sensitive)")
	f.StringVar(&opts.TitlePrefix, "title-prefix", "", "title starts with")
	f.IntVar(&opts.TypeID, "type-id", 0, "blog type id")
	f.StringVar(&opts.TypeName, "type", "", "blog type name")
	f.Float64Var(&opts.MinRating, "min-rating", 0, "minimum rating")
	f.StringVar(&opts.Sort, "sort", "", "comma separated field paths, '-' prefix for descending (e.g. -Rating,Type.Id)")
	f.IntVar(&opts.Page, "page", 0, "1-based page index; enables paging")
	f.IntVar(&opts.Size, "size", 0, "page size (defaults to query.default_page_size when --page is set)")
	f.IntVar(&opts.Top, "top", 0, "keep only the first N rows (applied before paging)")
	f.StringSliceVar(&opts.Include, "include", nil, "relations to load: "+strings.Join(blogIncludes, ", "))
	f.BoolVar(&opts.Archived, "archived", false, "include archived blogs")
	f.BoolVar(&opts.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func searchBlogs(ctx context.Context, out io.Writer, qc config.QueryConfig, repos *blogging.Repositories, opts searchOptions) error {
	if opts.TypeName != "" {
		t, found, err := blogging.TypeByName(ctx, repos, opts.TypeName)
		if err != nil {
			return err
		}
		if !found {
			return validation.Enum(opts.TypeName, "type", typeNames()...)
		}
		opts.TypeID = t.Id
	}
	q, err := buildBlogQuery(repos.Blogs, qc, opts)
	if err != nil {
		return err
	}
	l, err := repos.Blogs.SearchPage(ctx, q)
	if err != nil {
		return err
	}
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	}
	return printBlogs(out, l)
}

// buildBlogQuery 把命令行条件翻译为查询描述
func buildBlogQuery(r *repository.Repository[blogging.Blog], qc config.QueryConfig, opts searchOptions) (*query.MultipleResultQuery[blogging.Blog], error) {
	index := opts.Page
	if index == 0 {
		index = 1
	} else if opts.Size == 0 {
		opts.Size = qc.DefaultPageSize
	}
	if err := validation.All(
		validation.NonNegative(opts.Page, "page"),
		validation.PageParams(index, opts.Size, qc.MaxPageSize),
		validation.NonNegative(opts.Top, "top"),
		validation.NonNegative(opts.TypeID, "type-id"),
	); err != nil {
		return nil, err
	}
	for _, inc := range opts.Include {
		if err := validation.Enum(inc, "include", blogIncludes...); err != nil {
			return nil, err
		}
	}

	q := r.MultipleResultQuery()
	if opts.TitleContains != "" {
		q.AndFilter(query.Contains[blogging.Blog]("Title", opts.TitleContains))
	}
	if opts.TitlePrefix != "" {
		q.AndFilter(query.HasPrefix[blogging.Blog]("Title", opts.TitlePrefix))
	}
	if opts.TypeID > 0 {
		q.AndFilter(query.Eq[blogging.Blog]("TypeId", opts.TypeID))
	}
	if opts.MinRating > 0 {
		q.AndFilter(query.Gte[blogging.Blog]("Rating", opts.MinRating))
	}
	if len(opts.Include) > 0 {
		q.Include(opts.Include...)
	}
	if err := applySort(q, opts.Sort); err != nil {
		return nil, err
	}
	if opts.Archived {
		q.UseIgnoreQueryFilters(true)
	}
	if opts.Top > 0 {
		q.Top(opts.Top)
	}
	if opts.Size > 0 {
		q.Page(index, opts.Size)
	}
	return q, nil
}

// applySort 解析 "-Rating,Id" 形式的排序串：第一个字段 OrderBy，其余 ThenBy
func applySort(q *query.MultipleResultQuery[blogging.Blog], spec string) error {
	first := true
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		path := strings.TrimSpace(strings.TrimLeft(part, "+-"))
		if path == "" {
			return validation.Required(path, "sort")
		}
		switch {
		case first && desc:
			q.OrderByDescending(path)
		case first:
			q.OrderBy(path)
		case desc:
			q.ThenByDescending(path)
		default:
			q.ThenBy(path)
		}
		first = false
	}
	return nil
}

func typeNames() []string {
	names := make([]string, len(blogging.DefaultTypes))
	for i, t := range blogging.DefaultTypes {
		names[i] = t.Name
	}
	return names
}

func printBlogs(out io.Writer, l *page.List[blogging.Blog]) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tRATING\tPOSTS")
	for _, b := range l.Items() {
		typeName := fmt.Sprint(b.TypeId)
		if b.Type != nil {
			typeName = b.Type.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%d\n", b.Id, b.Title, typeName, b.Rating, len(b.Posts))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if l.PageSize() > 0 {
		fmt.Fprintf(out, "page %d/%d, %d of %d blogs\n", l.PageIndex(), l.TotalPages(), l.Count(), l.TotalCount())
	} else {
		fmt.Fprintf(out, "%d blogs\n", l.Count())
	}
	return nil
}
