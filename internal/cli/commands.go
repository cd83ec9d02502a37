package cli

import (
	"fmt"

	"runitdb/database"
	"runitdb/internal/config"
)

type collectionArg struct {
	Collection string `positional-arg-name:"collection" required:"yes"`
}

type configureCommand struct {
	app *App
}

func (c *configureCommand) Execute([]string) error {
	opts := c.app.resolvedOptions()
	if err := config.ValidateRequired(opts.Connection()); err != nil {
		return fmt.Errorf("%w: %w", database.ErrConfig, err)
	}
	if _, err := config.BuildEndpoints(opts.Endpoint); err != nil {
		return fmt.Errorf("%w: %w", database.ErrConfig, err)
	}
	if err := config.SaveSettings(config.SettingsFromOptions(opts)); err != nil {
		return err
	}
	path, _ := config.SettingsPath()
	_, err := fmt.Fprintln(c.app.stdout, "saved settings to", path)
	return err
}

type countCommand struct {
	app    *App
	Filter string        `long:"filter" short:"f" description:"JSON filter object"`
	Args   collectionArg `positional-args:"yes"`
}

func (c *countCommand) Execute([]string) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.Count(c.app.ctx, filter)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type selectCommand struct {
	app     *App
	Columns []string      `long:"column" short:"c" description:"Column to return (repeatable)"`
	Filter  string        `long:"filter" short:"f" description:"JSON filter object"`
	Args    collectionArg `positional-args:"yes"`
}

func (c *selectCommand) Execute([]string) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.Select(c.app.ctx, c.Columns, filter)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type allCommand struct {
	app     *App
	Columns []string      `long:"column" short:"c" description:"Column to return (repeatable)"`
	Args    collectionArg `positional-args:"yes"`
}

func (c *allCommand) Execute([]string) error {
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.All(c.app.ctx, c.Columns)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type getCommand struct {
	app     *App
	Columns []string `long:"column" short:"c" description:"Column to return (repeatable)"`
	Args    struct {
		Collection string `positional-arg-name:"collection" required:"yes"`
		ID         string `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes"`
}

func (c *getCommand) Execute([]string) error {
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.Get(c.app.ctx, c.Args.ID, c.Columns)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type findOneCommand struct {
	app     *App
	Columns []string      `long:"column" short:"c" description:"Column to return (repeatable)"`
	Filter  string        `long:"filter" short:"f" description:"JSON filter object"`
	Args    collectionArg `positional-args:"yes"`
}

func (c *findOneCommand) Execute([]string) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.FindOne(c.app.ctx, filter, c.Columns)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type findCommand struct {
	app     *App
	Columns []string      `long:"column" short:"c" description:"Column to return (repeatable)"`
	Filter  string        `long:"filter" short:"f" description:"JSON filter object"`
	Args    collectionArg `positional-args:"yes"`
}

func (c *findCommand) Execute([]string) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.Find(c.app.ctx, filter, c.Columns)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type insertCommand struct {
	app  *App
	Args struct {
		Collection string `positional-arg-name:"collection" required:"yes"`
		Document   string `positional-arg-name:"document" required:"yes" description:"JSON object"`
	} `positional-args:"yes"`
}

func (c *insertCommand) Execute([]string) error {
	doc, err := parseDocument(c.Args.Document)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.InsertOne(c.app.ctx, doc)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type insertManyCommand struct {
	app  *App
	Args struct {
		Collection string `positional-arg-name:"collection" required:"yes"`
		Documents  string `positional-arg-name:"documents" required:"yes" description:"JSON array of objects"`
	} `positional-args:"yes"`
}

func (c *insertManyCommand) Execute([]string) error {
	docs, err := parseDocuments(c.Args.Documents)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.InsertMany(c.app.ctx, docs)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type updateCommand struct {
	app    *App
	Filter string `long:"filter" short:"f" description:"JSON filter object"`
	Args   struct {
		Collection string `positional-arg-name:"collection" required:"yes"`
		Document   string `positional-arg-name:"document" required:"yes" description:"JSON object of fields to set"`
	} `positional-args:"yes"`
}

func (c *updateCommand) Execute([]string) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}
	update, err := parseDocument(c.Args.Document)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.Update(c.app.ctx, filter, update)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}

type removeCommand struct {
	app    *App
	Filter string        `long:"filter" short:"f" description:"JSON filter object"`
	Args   collectionArg `positional-args:"yes"`
}

func (c *removeCommand) Execute([]string) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}
	client, coll, err := c.app.collection(c.Args.Collection)
	if err != nil {
		return err
	}
	defer client.Close()
	res, err := coll.Remove(c.app.ctx, filter)
	if err != nil {
		return err
	}
	return c.app.printResult(res)
}
