package model

// Tool is the logical inventory record a drawer maps to.
type Tool struct {
	ID          string  `json:"id" yaml:"id" bson:"id"`
	Name        string  `json:"name" yaml:"name" bson:"name"`
	Description string  `json:"description" yaml:"description" bson:"description"`
	ImageURL    string  `json:"imageUrl" yaml:"image_url" bson:"image_url"`
	Type        string  `json:"type" yaml:"type" bson:"type"`
	Cost        float64 `json:"cost" yaml:"cost" bson:"cost"`
}

// User is a person an inventory event is attributed to.
type User struct {
	ID       string `json:"id" yaml:"id" bson:"id"`
	Name     string `json:"name" yaml:"name" bson:"name"`
	Email    string `json:"email" yaml:"email" bson:"email"`
	ImageURL string `json:"imageUrl" yaml:"image_url" bson:"image_url"`
}
