package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/frontmatter"
	"github.com/starford/gistblog/internal/models"
	"github.com/starford/gistblog/internal/query"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print JSON"}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readBody returns the contents of path, or stdin for "-".
func readBody(path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	arg := strings.TrimSpace(cmd.Args().First())
	if arg == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return arg, nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create an empty index in the gist",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			svc := backend.Service("")
			if err := svc.Init(ctx); err != nil {
				return err
			}
			fmt.Printf("created %s\n", svc.IndexFile())
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List published posts, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tag", Usage: "Only posts with this tag"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search title, summary and tags"},
			&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number"},
			&cli.BoolFlag{Name: "all", Usage: "List every record in index order, drafts included"},
			jsonFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			st, err := backend.Service("").Load(ctx)
			if err != nil {
				return err
			}
			var (
				posts  []models.Post
				footer string
			)
			if cmd.Bool("all") {
				posts = st.Index.Posts
			} else {
				list := query.Filter(st.Index.Posts, query.Criteria{Tag: cmd.String("tag"), Query: cmd.String("query")})
				page := query.Paginate(list, int(cmd.Int("page")), cfg.Blog.PageSize)
				if cmd.Bool("json") {
					return printJSON(page)
				}
				posts = page.Items
				footer = fmt.Sprintf("page %d of %d, %d posts\n", page.Number, page.TotalPages, page.Total)
			}
			if cmd.Bool("json") {
				return printJSON(posts)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILENAME\tSTATUS\tCREATED\tTITLE")
			for _, p := range posts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Filename, p.Status, models.FormatTime(p.CreatedAt), p.Title)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Print(footer)
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a post by slug or filename",
		ArgsUsage: "<slug|filename>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key, err := requireArg(cmd, "slug or filename")
			if err != nil {
				return err
			}
			cfg, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			svc := backend.Service("")
			var (
				post       models.Post
				body       string
				prev, next *models.Post
			)
			if strings.HasSuffix(key, ".md") {
				d, err := svc.ReadPost(ctx, key)
				if err != nil {
					return err
				}
				post, body = d.Post, d.Body
			} else {
				st, err := svc.Load(ctx)
				if err != nil {
					return err
				}
				d, err := query.Lookup(st.Index.Posts, key, cfg.Blog.NeighborMode(), query.Criteria{})
				if err != nil {
					return err
				}
				if body, err = svc.ReadBody(ctx, st, d.Post.Filename); err != nil {
					return err
				}
				post, prev, next = d.Post, d.Prev, d.Next
			}

			if cmd.Bool("json") {
				return printJSON(map[string]any{"post": post, "body": body, "prev": prev, "next": next})
			}
			fmt.Print(frontmatter.Encode(frontmatter.MetaFromPost(post), body))
			if !strings.HasSuffix(body, "\n") {
				fmt.Println()
			}
			return nil
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "new",
		Usage: "Create a post",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true, Usage: "Post title"},
			&cli.StringFlag{Name: "slug", Usage: "URL slug (derived from the title when empty)"},
			&cli.StringFlag{Name: "summary", Usage: "Short summary"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.BoolFlag{Name: "draft", Usage: "Create as draft"},
			&cli.StringFlag{Name: "body-file", Aliases: []string{"f"}, Usage: "Read the Markdown body from a file, - for stdin"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in := blog.PostInput{
				Title:   cmd.String("title"),
				Slug:    cmd.String("slug"),
				Summary: cmd.String("summary"),
				Tags:    blog.SplitTags(cmd.String("tags")),
			}
			if cmd.Bool("draft") {
				in.Status = models.StatusDraft
			}
			if path := cmd.String("body-file"); path != "" {
				body, err := readBody(path)
				if err != nil {
					return err
				}
				in.Body = body
			}

			_, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			post, err := backend.Service("").Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Println(post.Filename)
			return nil
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Update fields of a post; unset flags keep their value",
		ArgsUsage: "<filename>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title"},
			&cli.StringFlag{Name: "slug"},
			&cli.StringFlag{Name: "summary"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags; replaces the list"},
			&cli.StringFlag{Name: "status", Usage: "published or draft"},
			&cli.StringFlag{Name: "body-file", Aliases: []string{"f"}, Usage: "Read the Markdown body from a file, - for stdin"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			filename, err := requireArg(cmd, "filename")
			if err != nil {
				return err
			}

			str := func(name string) *string {
				if !cmd.IsSet(name) {
					return nil
				}
				v := cmd.String(name)
				return &v
			}
			u := blog.PostUpdate{Title: str("title"), Slug: str("slug"), Summary: str("summary")}
			if cmd.IsSet("tags") {
				tags := blog.SplitTags(cmd.String("tags"))
				u.Tags = &tags
			}
			if cmd.IsSet("status") {
				s := models.Status(cmd.String("status"))
				u.Status = &s
			}
			if path := cmd.String("body-file"); path != "" {
				body, err := readBody(path)
				if err != nil {
					return err
				}
				u.Body = &body
			}
			if u.Empty() {
				return errors.New("nothing to update")
			}

			_, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			post, err := backend.Service("").Update(ctx, filename, u)
			if err != nil {
				return err
			}
			fmt.Printf("updated %s at %s\n", post.Filename, models.FormatTime(post.UpdatedAt))
			return nil
		},
	}
}

func rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete a post",
		ArgsUsage: "<filename>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			filename, err := requireArg(cmd, "filename")
			if err != nil {
				return err
			}
			_, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.Service("").Delete(ctx, filename); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", filename)
			return nil
		},
	}
}
