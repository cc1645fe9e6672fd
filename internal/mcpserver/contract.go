package mcpserver

// PostFormat describes the post file layout and the fields the synchronizer
// manages. LLM consumers should read it before creating or editing posts.
const PostFormat = `# Blog Post Format

Posts live in one gist next to an index file (index.json). Every change goes
through the create_post, update_post and delete_post tools, which rewrite the
post file and the index in a single commit. Do not edit index.json by hand.

## Post file

` + "```" + `markdown
---
title: Hello World
slug: hello-world
tags: [go, notes]
summary: First post
created_at: 2024-03-05T10:00:00.000Z
updated_at: 2024-03-05T10:00:00.000Z
status: published
---
Body text in standard Markdown.
` + "```" + `

## Rules

1. **Filenames are generated.** A new post is stored as
   ` + "`" + `YYYY-MM-DD--<slug>.md` + "`" + ` using the UTC creation date. The filename never
   changes after creation, even if the title or slug does.
2. **` + "`" + `title` + "`" + ` is required.** The slug is derived from it when omitted:
   lowercase ASCII letters, digits and CJK characters, everything else
   collapsed into single hyphens.
3. **Slugs are unique among published posts.** Drafts may share a slug.
4. **` + "`" + `status` + "`" + `** is ` + "`" + `published` + "`" + ` (default) or ` + "`" + `draft` + "`" + `. Only published posts
   appear in list_posts.
5. **Tags** are a list of strings; duplicates and blanks are dropped.
6. **Timestamps** are managed by the server. ` + "`" + `updated_at` + "`" + ` never goes backwards.
7. **Encoding** is UTF-8. The header is regenerated on every write in the
   field order above; extra header keys are not kept.
`
