package extractor

import (
	"strings"

	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Game data record types
const (
	DataItem    = "item"
	DataRecipe  = "recipe"
	DataDrop    = "drop"
	DataNPC     = "npc"
	DataShop    = "shop"
	DataGroup   = "group"
	DataSpawn   = "spawn"
	DataUnknown = "unknown"
)

// Field path alternatives, evaluated in order.
var (
	inputPaths      = []string{"Recipe.Input[]", "Recipe.Inputs[]", "Recipe.Ingredients[]"}
	recipeInputs    = []string{"Input[]", "Inputs[]", "Ingredients[]"}
	inputItemFields = []string{"ItemId", "Item", "Id"}
	quantityFields  = []string{"Quantity", "Amount", "Count"}
	benchPaths      = []string{"BenchRequirement[]", "BenchRequirement", "Bench[]", "Bench"}
	particlePaths   = []string{"ParticleSystemId", "Particles[].SystemId", "Particles[].Id"}
	effectPaths     = []string{"Effects[].EffectId", "Effects[].Id", "Effects[]", "EffectId"}
	implPaths       = []string{"Class", "ClassName", "Implementation"}
)

var dataTypeKeywords = []struct {
	keyword  string
	dataType string
}{
	{"recipe", DataRecipe},
	{"drop", DataDrop},
	{"loot", DataDrop},
	{"shop", DataShop},
	{"barter", DataShop},
	{"merchant", DataShop},
	{"spawn", DataSpawn},
	{"group", DataGroup},
	{"npc", DataNPC},
	{"role", DataNPC},
	{"item", DataItem},
	{"block", DataItem},
}

// InferDataType derives a record type from directory names and, failing
// that, from the record's shape.
func InferDataType(relativePath string, rec Record) string {
	dirs := strings.Split(strings.ToLower(strings.ReplaceAll(relativePath, "\\", "/")), "/")
	dirs = dirs[:len(dirs)-1]
	for i := len(dirs) - 1; i >= 0; i-- {
		for _, kw := range dataTypeKeywords {
			if strings.Contains(dirs[i], kw.keyword) {
				return kw.dataType
			}
		}
	}

	switch {
	case rec.Has("PrimaryOutput"):
		return DataRecipe
	case rec.Has("TradeSlots"):
		return DataShop
	case rec.Has("Container"):
		return DataDrop
	case rec.Has("Members"):
		return DataGroup
	case rec.Has("DropList"), rec.Has("Drops"), rec.Has("DropTable"):
		return DataNPC
	case rec.Has("NPCs"):
		return DataSpawn
	case rec.Has("Recipe"):
		return DataItem
	}
	return DataUnknown
}

// ExtractGamedataEdges dispatches on the record's data type. Every record
// also gets IMPLEMENTED_BY edges when it names a code class.
func ExtractGamedataEdges(rec Record, res *resolver.Resolver) []types.Edge {
	c := newCollector(rec.OwningFile)
	switch rec.DataType {
	case DataItem:
		c.add(ExtractItemEdges(rec, res)...)
	case DataRecipe:
		c.add(ExtractRecipeEdges(rec, res)...)
	case DataDrop:
		c.add(ExtractDropEdges(rec, res)...)
	case DataNPC:
		c.add(ExtractNPCEdges(rec, res)...)
	case DataShop:
		c.add(ExtractShopEdges(rec, res)...)
	case DataGroup:
		c.add(ExtractGroupEdges(rec, res)...)
	case DataSpawn:
		c.add(ExtractSpawnEdges(rec, res)...)
	}
	c.add(ExtractImplementedByEdges(rec, res)...)
	return c.edges
}

func quantityMeta(obj Record) map[string]any {
	if q, ok := obj.Number(quantityFields...); ok {
		return map[string]any{types.MetaQuantity: q}
	}
	return nil
}

// inputEdges turns a list of recipe inputs into REQUIRES_ITEM edges, or
// REQUIRES_RESOURCE virtual edges for abstract resource inputs.
func inputEdges(rec Record, inputs []Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	for _, in := range inputs {
		meta := quantityMeta(in)
		if id := in.String(inputItemFields...); id != "" {
			edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeRequiresItem, meta)...)
			continue
		}
		if resource := in.String("ResourceTypeId", "ResourceType"); resource != "" {
			edges = append(edges, virtualEdge(rec.ID, KindResource, resource, types.EdgeRequiresResource, meta))
		}
	}
	return edges
}

func benchEdges(rec Record, base Record) []types.Edge {
	var edges []types.Edge
	for _, b := range base.Objects(benchPaths...) {
		if id := b.String("Id", "BenchId", "Type"); id != "" {
			edges = append(edges, virtualEdge(rec.ID, KindBench, id, types.EdgeUsesBench, nil))
		}
	}
	return edges
}

// ExtractItemEdges reads the item's embedded recipe. The item is implicitly
// its own output, so no PRODUCES_ITEM edge is written.
func ExtractItemEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	edges = append(edges, inputEdges(rec, rec.Objects(inputPaths...), res)...)
	if len(edges) == 0 {
		// Some records list bare ingredient ids.
		for _, id := range rec.Strings("Recipe.Ingredients[]", "Recipe.Input[]") {
			edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeRequiresItem, nil)...)
		}
	}
	for _, recipe := range rec.Objects("Recipe") {
		edges = append(edges, benchEdges(rec, recipe)...)
	}
	for _, p := range rec.Strings(particlePaths...) {
		edges = append(edges, virtualEdge(rec.ID, KindParticle, p, types.EdgeSpawnsParticle, nil))
	}
	for _, e := range rec.Strings(effectPaths...) {
		edges = append(edges, virtualEdge(rec.ID, KindEffect, e, types.EdgeAppliesEffect, nil))
	}
	return edges
}

// ExtractRecipeEdges handles standalone recipe files.
func ExtractRecipeEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	for _, id := range rec.Strings("PrimaryOutput.ItemId", "PrimaryOutput.Item", "Output.ItemId") {
		meta := map[string]any{types.MetaRole: "primary"}
		for _, out := range rec.Objects("PrimaryOutput", "Output") {
			if q, ok := out.Number(quantityFields...); ok {
				meta[types.MetaQuantity] = q
			}
		}
		edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeProducesItem, meta)...)
	}
	for _, out := range rec.Objects("Outputs[]", "SecondaryOutputs[]") {
		if id := out.String(inputItemFields...); id != "" {
			meta := map[string]any{types.MetaRole: "secondary"}
			if q, ok := out.Number(quantityFields...); ok {
				meta[types.MetaQuantity] = q
			}
			edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeProducesItem, meta)...)
		}
	}
	edges = append(edges, inputEdges(rec, rec.Objects(recipeInputs...), res)...)
	edges = append(edges, benchEdges(rec, rec)...)
	return edges
}

const maxContainerDepth = 64

// ExtractDropEdges walks the container hierarchy of a drop table.
func ExtractDropEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	var walk func(container Record, depth int)
	walk = func(container Record, depth int) {
		if depth > maxContainerDepth {
			return
		}
		if id := container.String("Item.ItemId", "ItemId"); id != "" {
			var meta map[string]any
			if chance, ok := container.Number("Chance", "Weight"); ok {
				meta = map[string]any{types.MetaChance: chance}
			}
			edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeDropsItem, meta)...)
		}
		for _, child := range container.Objects("Containers[]", "Children[]") {
			walk(child, depth+1)
		}
	}
	for _, root := range rec.Objects("Container", "Containers[]", "DropList.Container") {
		walk(root, 0)
	}
	return edges
}

// ExtractNPCEdges links an NPC to its drop table.
func ExtractNPCEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	for _, id := range rec.Strings("DropList", "Drops", "DropTable", "DropList.Id", "Drops[].Id") {
		edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeDropsOnDeath, nil)...)
	}
	for _, e := range rec.Strings(effectPaths...) {
		edges = append(edges, virtualEdge(rec.ID, KindEffect, e, types.EdgeAppliesEffect, nil))
	}
	return edges
}

// ExtractShopEdges reads every trade offered by a shop. The cost of a trade
// is kept as edge metadata.
func ExtractShopEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	for _, slot := range rec.Objects("TradeSlots[]") {
		for _, trade := range slot.Objects("Trade", "Trades[]") {
			id := trade.String("Output.ItemId", "Output.Item", "Output.Id")
			if id == "" {
				continue
			}
			meta := map[string]any{}
			if q, ok := trade.Number("Output.Quantity", "Output.Amount"); ok {
				meta[types.MetaQuantity] = q
			}
			var cost []any
			for _, in := range trade.Objects("Input[]", "Inputs[]", "Cost[]") {
				item := in.String(inputItemFields...)
				if item == "" {
					continue
				}
				entry := map[string]any{"item": item}
				if q, ok := in.Number(quantityFields...); ok {
					entry[types.MetaQuantity] = q
				}
				cost = append(cost, entry)
			}
			if len(cost) > 0 {
				meta[types.MetaCost] = cost
			}
			if len(meta) == 0 {
				meta = nil
			}
			edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeOfferedInShop, meta)...)
		}
	}
	return edges
}

// ExtractGroupEdges writes HAS_MEMBER for every member and the reverse
// BELONGS_TO_GROUP in the same pass.
func ExtractGroupEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	members := rec.Strings("Members[]", "Members[].Id", "Members[].ItemId")
	for _, m := range members {
		for _, e := range res.ResolveStem(m, rec.ID, types.EdgeHasMember, nil) {
			edges = append(edges, e)
			edges = append(edges, types.Edge{
				SourceID:       e.TargetID,
				TargetID:       rec.ID,
				Type:           types.EdgeBelongsToGroup,
				TargetResolved: true,
				Metadata:       e.Metadata,
			})
		}
	}
	return edges
}

// ExtractSpawnEdges links spawn definitions to the NPCs they create.
func ExtractSpawnEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	for _, id := range rec.Strings("NPCs[].Id", "Npcs[].Name", "NPCs[].Name", "NPCs[]") {
		edges = append(edges, res.ResolveStem(id, rec.ID, types.EdgeSpawnsNPC, nil)...)
	}
	return edges
}

// ExtractImplementedByEdges links a record to the code class that implements
// it. Code is indexed before game data, but a class missing from the current
// code corpus is written as a pending edge for the healing sweep.
func ExtractImplementedByEdges(rec Record, res *resolver.Resolver) []types.Edge {
	var edges []types.Edge
	for _, class := range rec.Strings(implPaths...) {
		name := simpleName(class)
		if name == "" {
			continue
		}
		found := res.Resolve(types.CorpusCode, name, rec.ID, types.EdgeImplementedBy, nil, isTypeDecl)
		if len(found) == 0 {
			edges = append(edges, pendingEdge(rec.ID, types.CorpusCode, name, types.EdgeImplementedBy))
			continue
		}
		edges = append(edges, found...)
	}
	return edges
}
