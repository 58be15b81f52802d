package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

// field is one editable attribute: a dashed flag name bound to a JSON key.
type field struct {
	flag  string
	usage string
}

func (f field) key() string { return strings.ReplaceAll(f.flag, "-", "_") }

// resource describes a user-owned list (catalog, strategies, brains) and
// how its entries print.
type resource[T any] struct {
	use    string
	noun   string
	path   string
	fields []field
	row    func(T) (id, title, detail string)
}

func newResourceCmd[T any](r resource[T], short string) *cobra.Command {
	root := &cobra.Command{Use: r.use, Short: short}

	list := &cobra.Command{
		Use:   "list",
		Short: "List " + r.use + ", newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			client, err := signedInClient()
			if err != nil {
				return err
			}
			resp, err := client.get(cmdContext(cmd), r.path)
			if err != nil {
				return err
			}
			var items []T
			if err := decodeJSON(resp, &items); err != nil {
				return err
			}
			if asJSON {
				return printJSON(items)
			}
			if len(items) == 0 {
				printWarning("No %s yet", r.use)
				return nil
			}
			for _, it := range items {
				printRow(r.row(it))
			}
			return nil
		},
	}
	list.Flags().Bool("json", false, "print as JSON")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one " + r.noun + " as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := signedInClient()
			if err != nil {
				return err
			}
			resp, err := client.get(cmdContext(cmd), r.path+"/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var item T
			if err := decodeJSON(resp, &item); err != nil {
				return err
			}
			return printJSON(item)
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a " + r.noun,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := make(map[string]string, len(r.fields))
			for _, f := range r.fields {
				body[f.key()], _ = cmd.Flags().GetString(f.flag)
			}
			return submit(cmd, "POST", r.path, body, r.noun+" added")
		},
	}

	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a " + r.noun,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{}
			for _, f := range r.fields {
				if cmd.Flags().Changed(f.flag) {
					body[f.key()], _ = cmd.Flags().GetString(f.flag)
				}
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to change; pass at least one field flag")
			}
			return submit(cmd, "PATCH", r.path+"/"+url.PathEscape(args[0]), body, r.noun+" updated")
		},
	}

	for _, f := range r.fields {
		add.Flags().String(f.flag, "", f.usage)
		edit.Flags().String(f.flag, "", f.usage)
	}

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a " + r.noun,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			return deleteEntry(cmd, r.path, args[0], confirm)
		},
	}
	del.Flags().Bool("confirm", false, "delete without asking")

	root.AddCommand(list, show, add, edit, del)
	return root
}

// submit sends a create or update and prints the server's notice.
func submit(cmd *cobra.Command, method, path string, body any, fallback string) error {
	client, err := signedInClient()
	if err != nil {
		return err
	}
	resp, err := client.do(cmdContext(cmd), method, path, body)
	if err != nil {
		return err
	}
	var out struct {
		ID     string `json:"id"`
		Notice string `json:"notice"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}
	if out.Notice == "" {
		out.Notice = fallback
	}
	printSuccess("%s (%s)", out.Notice, out.ID)
	return nil
}

var productsCmd = newResourceCmd(resource[storage.CatalogItem]{
	use:  "products",
	noun: "product",
	path: "/catalog",
	fields: []field{
		{"store-name", "store name"},
		{"product-name", "product name"},
		{"product-link", "product page URL"},
		{"description", "product description"},
	},
	row: func(c storage.CatalogItem) (string, string, string) {
		return c.ID, c.StoreName + " / " + c.ProductName, c.Description
	},
}, "Manage the product catalog")

var strategiesCmd = newResourceCmd(resource[storage.Strategy]{
	use:  "strategies",
	noun: "strategy",
	path: "/strategies",
	fields: []field{
		{"title", "strategy name"},
		{"hook", "hook or formula"},
		{"example", "example caption"},
	},
	row: func(s storage.Strategy) (string, string, string) {
		return s.ID, s.Title, s.Hook
	},
}, "Manage caption strategies")

var brainsCmd = newResourceCmd(resource[storage.Brain]{
	use:  "brains",
	noun: "persona",
	path: "/brains",
	fields: []field{
		{"title", "persona name"},
		{"instruction", "instruction the persona follows"},
	},
	row: func(b storage.Brain) (string, string, string) {
		return b.ID, b.Title, b.Instruction
	},
}, "Manage writing personas")

// importPDF turns a brochure into a catalog draft and saves it, letting any
// field flags override what was read from the file.
func importPDF(cmd *cobra.Command, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading PDF: %w", err)
	}
	client, err := signedInClient()
	if err != nil {
		return err
	}

	fields := map[string]string{}
	for _, name := range []string{"store-name", "product-name", "product-link"} {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			fields[strings.ReplaceAll(name, "-", "_")] = v
		}
	}

	printStep("Reading %s...", filepath.Base(path))
	resp, err := client.upload(cmdContext(cmd), "/catalog/import-pdf", fields, filepath.Base(path), content)
	if err != nil {
		return err
	}
	var out struct {
		Draft storage.CatalogItemFields `json:"draft"`
		Pages int                       `json:"pages"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}
	printStatus("Pages", "%d", out.Pages)

	if v, _ := cmd.Flags().GetString("description"); v != "" {
		out.Draft.Description = v
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return printJSON(out.Draft)
	}
	return submit(cmd, "POST", "/catalog", out.Draft, "product added")
}

func init() {
	// products add also accepts a PDF brochure.
	for _, c := range productsCmd.Commands() {
		if c.Name() != "add" {
			continue
		}
		c.Flags().String("pdf", "", "read the product from a PDF brochure")
		c.Flags().Bool("dry-run", false, "with --pdf, print the draft without saving")
		run := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			if p, _ := cmd.Flags().GetString("pdf"); p != "" {
				return importPDF(cmd, p)
			}
			return run(cmd, args)
		}
		c.Long = `Add a product to the catalog.

Examples:
  kohen products add --store-name "Toko Kopi" --product-name "Robusta 250g" --description "Biji kopi pilihan"
  kohen products add --pdf ./brosur.pdf --store-name "Toko Kopi"`
	}
}
