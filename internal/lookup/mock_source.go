package lookup

import (
	"context"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/hitoshi/tastify/internal/model"
)

// mockRecipes は組み込みソースが返すレシピ集。
// 外部APIが利用できない環境でもアプリを動作させるためのフォールバックデータ。
var mockRecipes = []model.Recipe{
	{
		ID:           "1",
		Name:         "Spaghetti Carbonara",
		Thumbnail:    "https://images.unsplash.com/photo-1621996346565-e3dbc353d2e5?w=400&h=300&fit=crop",
		Category:     "Italian",
		Area:         "Italian",
		Instructions: "Cook spaghetti according to package directions. In a large bowl, whisk together eggs, cheese, and pepper. Drain pasta and immediately add to egg mixture, tossing quickly to coat. Add pancetta and toss again. Serve immediately.",
		Ingredients: []model.Ingredient{
			{Name: "Spaghetti", Measure: "400g"},
			{Name: "Eggs", Measure: "4 large"},
			{Name: "Parmesan cheese", Measure: "100g grated"},
			{Name: "Pancetta", Measure: "150g diced"},
			{Name: "Black pepper", Measure: "To taste"},
		},
		CookingTime: "20 mins",
		Difficulty:  "Medium",
	},
	{
		ID:           "2",
		Name:         "Chicken Tikka Masala",
		Thumbnail:    "https://images.unsplash.com/photo-1565557623262-b51c2513a641?w=400&h=300&fit=crop",
		Category:     "Indian",
		Area:         "Indian",
		Instructions: "Marinate chicken in yogurt and spices. Grill until cooked. In a pan, sauté onions, add tomatoes, cream, and spices. Add grilled chicken and simmer. Serve with rice or naan.",
		Ingredients: []model.Ingredient{
			{Name: "Chicken breast", Measure: "500g cubed"},
			{Name: "Yogurt", Measure: "200ml"},
			{Name: "Tomatoes", Measure: "400g canned"},
			{Name: "Heavy cream", Measure: "200ml"},
			{Name: "Garam masala", Measure: "2 tsp"},
		},
		CookingTime: "45 mins",
		Difficulty:  "Medium",
	},
	{
		ID:           "3",
		Name:         "Beef Tacos",
		Thumbnail:    "https://images.unsplash.com/photo-1565299624946-b28f40a0ca4b?w=400&h=300&fit=crop",
		Category:     "Mexican",
		Area:         "Mexican",
		Instructions: "Season and cook ground beef with onions and spices. Warm tortillas. Fill with beef, lettuce, cheese, and salsa. Serve with lime wedges.",
		Ingredients: []model.Ingredient{
			{Name: "Ground beef", Measure: "500g"},
			{Name: "Taco shells", Measure: "8 pieces"},
			{Name: "Lettuce", Measure: "1 head shredded"},
			{Name: "Cheddar cheese", Measure: "200g grated"},
			{Name: "Salsa", Measure: "200ml"},
		},
		CookingTime: "25 mins",
		Difficulty:  "Easy",
	},
	{
		ID:           "4",
		Name:         "Pad Thai",
		Thumbnail:    "https://images.unsplash.com/photo-1559314809-0f31657def5e?w=400&h=300&fit=crop",
		Category:     "Asian",
		Area:         "Thai",
		Instructions: "Soak rice noodles. Stir-fry shrimp, add noodles, sauce, eggs, and vegetables. Garnish with peanuts and lime.",
		Ingredients: []model.Ingredient{
			{Name: "Rice noodles", Measure: "200g"},
			{Name: "Shrimp", Measure: "300g"},
			{Name: "Bean sprouts", Measure: "200g"},
			{Name: "Eggs", Measure: "2 large"},
			{Name: "Peanuts", Measure: "50g crushed"},
		},
		CookingTime: "30 mins",
		Difficulty:  "Medium",
	},
	{
		ID:           "5",
		Name:         "Caesar Salad",
		Thumbnail:    "https://images.unsplash.com/photo-1546793665-c74683f339c1?w=400&h=300&fit=crop",
		Category:     "Vegetarian",
		Area:         "American",
		Instructions: "Wash and chop romaine lettuce. Make dressing with anchovies, garlic, lemon, and parmesan. Toss lettuce with dressing and croutons.",
		Ingredients: []model.Ingredient{
			{Name: "Romaine lettuce", Measure: "2 heads"},
			{Name: "Parmesan cheese", Measure: "100g"},
			{Name: "Croutons", Measure: "100g"},
			{Name: "Anchovies", Measure: "6 fillets"},
			{Name: "Lemon", Measure: "1 large"},
		},
		CookingTime: "15 mins",
		Difficulty:  "Easy",
	},
	{
		ID:           "6",
		Name:         "Margherita Pizza",
		Thumbnail:    "https://images.unsplash.com/photo-1574071318508-1cdbab80d002?w=400&h=300&fit=crop",
		Category:     "Italian",
		Area:         "Italian",
		Instructions: "Roll out pizza dough. Spread tomato sauce, add mozzarella and basil. Bake at 220°C for 12-15 minutes until golden.",
		Ingredients: []model.Ingredient{
			{Name: "Pizza dough", Measure: "1 ball"},
			{Name: "Tomato sauce", Measure: "200ml"},
			{Name: "Mozzarella", Measure: "200g"},
			{Name: "Fresh basil", Measure: "20 leaves"},
			{Name: "Olive oil", Measure: "2 tbsp"},
		},
		CookingTime: "25 mins",
		Difficulty:  "Easy",
	},
	{
		ID:           "7",
		Name:         "Chicken Curry",
		Thumbnail:    "https://images.unsplash.com/photo-1588166524941-3bf61a9c41db?w=400&h=300&fit=crop",
		Category:     "Indian",
		Area:         "Indian",
		Instructions: "Sauté onions, add spices, tomatoes, and coconut milk. Add chicken and simmer until cooked. Serve with rice.",
		Ingredients: []model.Ingredient{
			{Name: "Chicken thighs", Measure: "600g"},
			{Name: "Coconut milk", Measure: "400ml"},
			{Name: "Onions", Measure: "2 large"},
			{Name: "Curry powder", Measure: "3 tbsp"},
			{Name: "Tomatoes", Measure: "400g canned"},
		},
		CookingTime: "40 mins",
		Difficulty:  "Medium",
	},
	{
		ID:           "8",
		Name:         "Greek Salad",
		Thumbnail:    "https://images.unsplash.com/photo-1540420773420-3366772f4999?w=400&h=300&fit=crop",
		Category:     "Vegetarian",
		Area:         "Greek",
		Instructions: "Chop tomatoes, cucumbers, and onions. Add olives and feta cheese. Dress with olive oil, lemon juice, and oregano.",
		Ingredients: []model.Ingredient{
			{Name: "Tomatoes", Measure: "4 large"},
			{Name: "Cucumber", Measure: "1 large"},
			{Name: "Feta cheese", Measure: "200g"},
			{Name: "Olives", Measure: "100g"},
			{Name: "Red onion", Measure: "1 medium"},
		},
		CookingTime: "10 mins",
		Difficulty:  "Easy",
	},
}

// mockCategories はカテゴリ名から所属レシピIDへの対応。
// カテゴリ名とstrCategoryが一致しない所属（American等）もここで表す。
var mockCategories = map[string][]string{
	"Italian":    {"1", "6"},
	"Indian":     {"2", "7"},
	"Mexican":    {"3"},
	"Asian":      {"4"},
	"Vegetarian": {"5", "8"},
	"American":   {"5"},
}

// MockSource は組み込みレシピを返すSource実装。
// 外部APIの設定がない環境向けのフォールバック。
type MockSource struct{}

// NewMockSource はMockSourceを生成する。
func NewMockSource() *MockSource {
	return &MockSource{}
}

// RandomSample はランダムに選んだレシピを最大count件返す。
func (s *MockSource) RandomSample(ctx context.Context, count int) ([]model.Recipe, error) {
	shuffled := make([]model.Recipe, len(mockRecipes))
	copy(shuffled, mockRecipes)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if count > len(shuffled) {
		count = len(shuffled)
	}
	if count < 0 {
		count = 0
	}
	return shuffled[:count], nil
}

// ByCategory は指定カテゴリのレシピ一覧を返す。
// カテゴリ表のID所属とstrCategoryの一致のどちらでもヒットする。
func (s *MockSource) ByCategory(ctx context.Context, category string) ([]model.Recipe, error) {
	ids := mockCategories[category]
	var out []model.Recipe
	for _, r := range mockRecipes {
		if r.Category == category || slices.Contains(ids, r.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Search は名前・カテゴリ・地域の部分一致でレシピを検索する。
func (s *MockSource) Search(ctx context.Context, query string) ([]model.Recipe, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []model.Recipe{}, nil
	}

	var out []model.Recipe
	for _, r := range mockRecipes {
		if strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(strings.ToLower(r.Category), q) ||
			strings.Contains(strings.ToLower(r.Area), q) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ByID は指定IDのレシピを返す。見つからない場合はnil。
func (s *MockSource) ByID(ctx context.Context, id string) (*model.Recipe, error) {
	for _, r := range mockRecipes {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

// Categories は利用可能なカテゴリ名の一覧を名前順で返す。
func (s *MockSource) Categories(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(mockCategories))
	for name := range mockCategories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// compile-time interface check
var _ Source = (*MockSource)(nil)
